package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"xui-shop-core/internal/constants"
)

// QRService provides QR code generation functionality
type QRService struct {
	logger *logrus.Logger
}

// NewQRService creates a new QR code service
func NewQRService(logger *logrus.Logger) *QRService {
	return &QRService{
		logger: logger,
	}
}

// GenerateQR renders text as a PNG QR code
func (s *QRService) GenerateQR(text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot encode empty text")
	}

	qr, err := qrcode.Encode(text, qrcode.Medium, constants.QRCodeSize)
	if err != nil {
		s.logger.Errorf("Failed to generate QR code: %v", err)
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	return qr, nil
}
