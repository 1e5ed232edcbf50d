package session

import (
	qrterminal "github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"

	logx "wabot/pkg/logx"
)

const qrImageSize = 256

// challengeResult renders one login challenge for delivery: a PNG for the
// HTML page plus a terminal rendering so headless operators can scan
// straight from the logs.
func challengeResult(code string, log logx.Logger) (ConnectResult, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return ConnectResult{}, err
	}

	log.Info("scan the QR code to authenticate")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, logx.Stdout())

	return ConnectResult{QRCode: code, QRPNG: png}, nil
}
