package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	config "github.com/anjiri1684/tutor_settlement/configs"
	"github.com/anjiri1684/tutor_settlement/services"
	"github.com/google/uuid"
)

const kcbB2CBaseURL = "https://api.buni.kcbgroup.com/mm/api/request/1.0.0"

type B2CRequest struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	TransactionReference   string `json:"transactionReference"`
	OrgShortCode           string `json:"orgShortCode"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type B2CResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		TransactionID       string `json:"TransactionID"`
		ReceiptNumber       string `json:"ReceiptNumber"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	} `json:"response"`
}

// B2CService sends business-to-customer transfers through the KCB Buni
// mobile money API. It satisfies services.Transferer; declined transfers
// come back as failed results, not errors, so the payout workflow can
// route them into retry scheduling.
type B2CService struct{}

func NewB2CService() *B2CService {
	return &B2CService{}
}

func (s *B2CService) Transfer(phoneNumber string, amount float64, correlationID uuid.UUID) (*services.TransferResult, error) {
	accessToken, err := GetKcbAccessToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get KCB access token: %v", err)
	}

	payload := B2CRequest{
		PhoneNumber:            phoneNumber,
		Amount:                 strconv.FormatFloat(amount, 'f', 0, 64),
		TransactionReference:   correlationID.String(),
		OrgShortCode:           config.Config("KCB_SHORT_CODE"),
		CallbackURL:            config.Config("WEBHOOK_BASE_URL") + "/api/v1/payments/b2c-result",
		TransactionDescription: "Teacher payout",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal B2C payload: %v", err)
	}

	req, err := http.NewRequest("POST", kcbB2CBaseURL+"/b2c", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create B2C request: %v", err)
	}

	messageID := fmt.Sprintf("%s_%d", correlationID, time.Now().UnixNano())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("routeCode", config.Config("KCB_ROUTE_CODE"))
	req.Header.Set("operation", "B2C")
	req.Header.Set("messageId", messageID)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send B2C request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read B2C response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("KCB B2C API error: %s", string(respBody))
		return nil, fmt.Errorf("KCB Buni API returned non-200 status: %d", resp.StatusCode)
	}

	var b2cResponse B2CResponse
	if err := json.Unmarshal(respBody, &b2cResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal B2C response: %v", err)
	}

	if b2cResponse.Response.ResponseCode != "0" {
		log.Printf("KCB B2C transfer declined: %s", b2cResponse.Response.ResponseDescription)
		return &services.TransferResult{
			Success:      false,
			ErrorCode:    b2cResponse.Response.ResponseCode,
			ErrorMessage: b2cResponse.Response.ResponseDescription,
		}, nil
	}

	log.Println("✅ B2C transfer accepted for payout:", correlationID)
	return &services.TransferResult{
		Success:       true,
		TransactionID: b2cResponse.Response.TransactionID,
		ReceiptNumber: b2cResponse.Response.ReceiptNumber,
	}, nil
}
