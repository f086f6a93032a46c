package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/bituzin/stacksend/internal/model"
)

func TestTransferMessage(t *testing.T) {
	req := Request{
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		SenderAddress:    "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE",
		Amount:           decimal.New(1500000, -6),
		Asset:            model.STXAsset,
		TxID:             "0xabc",
		Network:          model.NetworkMainnet,
	}

	want := "🎉 *You received* 1.500000 STX!\n\n" +
		"💰 *Amount:* 1.500000 STX\n" +
		"📬 *To:* `SP2J6ZY4...RV9EJ7`\n" +
		"👤 *From:* `SP3FBR2A...J5SVTE`\n" +
		"🔗 [View Transaction](https://explorer.hiro.so/txid/0xabc)"
	assert.Equal(t, want, TransferMessage(req, ""))
}

func TestExplorerTxURLTestnet(t *testing.T) {
	assert.Equal(t, "https://explorer.example/txid/0x1?chain=testnet",
		ExplorerTxURL("https://explorer.example/", "0x1", model.NetworkTestnet))
	assert.Equal(t, "https://explorer.hiro.so/txid/0x1?chain=testnet",
		ExplorerTxURL("", "0x1", model.NetworkUnknown))
}

func TestFormatAmountUsesAssetPrecision(t *testing.T) {
	sbtc := model.Asset{Symbol: "sBTC", Decimals: 8}
	assert.Equal(t, "0.00000025", FormatAmount(decimal.New(25, -8), sbtc))
	assert.Equal(t, "2.000000", FormatAmount(decimal.New(2000000, -6), model.STXAsset))
}

func TestTruncateAddressNeverShowsShortAddressInFull(t *testing.T) {
	assert.Equal(t, "SP...", TruncateAddress("SP_A"))
	assert.Equal(t, "SP12345...", TruncateAddress("SP123456789012"))
	assert.Equal(t, "...", TruncateAddress(""))
	assert.Equal(t, "SP123456...890123", TruncateAddress("SP1234567890123"))
}

func TestTransferMessageEscapesSymbol(t *testing.T) {
	req := Request{
		RecipientAddress: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		SenderAddress:    "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE",
		Amount:           decimal.New(5, 0),
		Asset:            model.Asset{Symbol: "my_token*", Decimals: 0},
		TxID:             "0xabc",
		Network:          model.NetworkMainnet,
	}

	msg := TransferMessage(req, "")
	assert.Contains(t, msg, "🎉 *You received* 5 my\\_token\\*!")
	assert.Contains(t, msg, "💰 *Amount:* 5 my\\_token\\*\n")
	assert.NotContains(t, msg, "my_token")
}
