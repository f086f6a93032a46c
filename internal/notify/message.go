package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/bituzin/stacksend/internal/model"
)

const DefaultExplorerURL = "https://explorer.hiro.so"

// ExplorerTxURL links a transaction on the block explorer of the given network.
func ExplorerTxURL(base, txID string, network model.Network) string {
	if base == "" {
		base = DefaultExplorerURL
	}
	url := strings.TrimRight(base, "/") + "/txid/" + txID
	if network != model.NetworkMainnet {
		url += "?chain=testnet"
	}
	return url
}

// TruncateAddress keeps the first 8 and the last 6 characters. Addresses too
// short for that keep only their first half.
func TruncateAddress(addr string) string {
	const head, tail = 8, 6
	if len(addr) <= head+tail {
		return addr[:len(addr)/2] + "..."
	}
	return addr[:head] + "..." + addr[len(addr)-tail:]
}

// FormatAmount renders a human-scaled amount with the asset's precision.
func FormatAmount(amount decimal.Decimal, asset model.Asset) string {
	return amount.StringFixed(asset.Decimals)
}

// TransferMessage renders the Markdown notification for one received payment.
// The symbol comes from a contract name and is escaped, so it stays outside
// bold spans where Telegram does not accept escapes.
func TransferMessage(req Request, explorerBase string) string {
	amount := FormatAmount(req.Amount, req.Asset)
	symbol := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, req.Asset.Symbol)
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 *You received* %s %s!\n\n", amount, symbol)
	fmt.Fprintf(&b, "💰 *Amount:* %s %s\n", amount, symbol)
	fmt.Fprintf(&b, "📬 *To:* `%s`\n", TruncateAddress(req.RecipientAddress))
	fmt.Fprintf(&b, "👤 *From:* `%s`\n", TruncateAddress(req.SenderAddress))
	fmt.Fprintf(&b, "🔗 [View Transaction](%s)", ExplorerTxURL(explorerBase, req.TxID, req.Network))
	return b.String()
}

// WelcomeMessage is sent once a wallet is linked to a chat.
func WelcomeMessage(walletAddress string) string {
	return "👋 *Welcome to StackSend Notifications!*\n\n" +
		"Your wallet has been linked:\n`" + walletAddress + "`\n\n" +
		"You'll receive instant notifications whenever you receive STX or fungible tokens via StackSend.\n\n" +
		"🔔 Notifications are *enabled* by default.\n\n" +
		CommandHelp
}

const CommandHelp = "*Commands:*\n" +
	"/status - Check your notification status\n" +
	"/disable - Disable notifications\n" +
	"/enable - Enable notifications"
