package erpfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// ErrFeedUnavailable wraps transport and status failures from the ERP.
var ErrFeedUnavailable = errors.New("erp feed unavailable")

// ErrClientConfig reports invalid client wiring.
var ErrClientConfig = errors.New("invalid erp client config")

const (
	defaultTimeout = 30 * time.Second
	retryDelay     = 2 * time.Second
)

// Config is the ERP endpoint configuration.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Validate checks the endpoint configuration.
func (config Config) Validate() error {
	if config.BaseURL == "" {
		return fmt.Errorf("%w: base url is required", ErrClientConfig)
	}
	return nil
}

// Client fetches turnover rows from the ERP report endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient wires a Client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// feedRow tolerates both snake_case and camelCase field names, since the
// ERP export format has shipped under both.
type feedRow struct {
	SellerINNSnake string      `json:"seller_inn"`
	SellerINNCamel string      `json:"sellerInn"`
	BuyerINNSnake  string      `json:"buyer_inn"`
	BuyerINNCamel  string      `json:"buyerInn"`
	BuyerNameSnake string      `json:"buyer_name"`
	BuyerNameCamel string      `json:"buyerName"`
	DocNumberSnake string      `json:"doc_number"`
	DocNumberCamel string      `json:"docNumber"`
	DocDateSnake   string      `json:"doc_date"`
	DocDateCamel   string      `json:"docDate"`
	Product        string      `json:"product"`
	VolumeMLSnake  json.Number `json:"volume_ml"`
	VolumeMLCamel  json.Number `json:"volumeMl"`
}

func pick(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

func pickNumber(primary, fallback json.Number) json.Number {
	if primary != "" {
		return primary
	}
	return fallback
}

// FetchTurnover downloads the current report. One retry covers transient
// failures; anything beyond that surfaces as ErrFeedUnavailable. Rows that
// fail validation are skipped and logged, never fatal.
func (client *Client) FetchTurnover(ctx context.Context) ([]claims.TurnoverInput, error) {
	body, err := client.download(ctx)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		body, err = client.download(ctx)
		if err != nil {
			return nil, err
		}
	}

	var rows []feedRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFeedUnavailable, err)
	}

	inputs := make([]claims.TurnoverInput, 0, len(rows))
	skipped := 0
	for index, row := range rows {
		input, err := client.mapRow(row)
		if err != nil {
			skipped++
			client.logger.Warn("skipping invalid feed row", zap.Int("index", index), zap.Error(err))
			continue
		}
		inputs = append(inputs, input)
	}
	if skipped > 0 {
		client.logger.Info("feed rows skipped", zap.Int("skipped", skipped), zap.Int("accepted", len(inputs)))
	}
	return inputs, nil
}

func (client *Client) download(ctx context.Context) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.config.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if client.config.Username != "" {
		request.SetBasicAuth(client.config.Username, client.config.Password)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFeedUnavailable, response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return body, nil
}

func (client *Client) mapRow(row feedRow) (claims.TurnoverInput, error) {
	sellerINN, err := claims.NewTaxID(pick(row.SellerINNSnake, row.SellerINNCamel))
	if err != nil {
		return claims.TurnoverInput{}, err
	}
	buyerINN, err := claims.NewTaxID(pick(row.BuyerINNSnake, row.BuyerINNCamel))
	if err != nil {
		return claims.TurnoverInput{}, err
	}
	docDate := pick(row.DocDateSnake, row.DocDateCamel)
	period, err := claims.NewPeriodDate(docDate)
	if err != nil {
		return claims.TurnoverInput{}, err
	}
	docNumber := pick(row.DocNumberSnake, row.DocNumberCamel)
	if docNumber == "" {
		return claims.TurnoverInput{}, fmt.Errorf("missing doc number")
	}
	rawVolume, err := pickNumber(row.VolumeMLSnake, row.VolumeMLCamel).Int64()
	if err != nil {
		return claims.TurnoverInput{}, fmt.Errorf("volume: %v", err)
	}
	volume, err := claims.NewVolumeML(rawVolume)
	if err != nil {
		return claims.TurnoverInput{}, err
	}
	// The natural key is stable across re-exports of the same document.
	sourceRowKey, err := claims.NewSourceRowKey(fmt.Sprintf("%s/%s/%s", sellerINN, docNumber, docDate))
	if err != nil {
		return claims.TurnoverInput{}, err
	}
	return claims.TurnoverInput{
		SourceRowKey: sourceRowKey,
		Period:       period,
		SellerINN:    sellerINN,
		BuyerINN:     buyerINN,
		BuyerName:    pick(row.BuyerNameSnake, row.BuyerNameCamel),
		Product:      row.Product,
		Volume:       volume,
	}, nil
}
