package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
)

// HTTPDirectory implements Directory against a JSON directory service
// exposing GET /wallets/{callerId}.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for baseURL.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

var _ Directory = (*HTTPDirectory)(nil)

type walletRecordPayload struct {
	CallerID    string              `json:"callerId"`
	Deployments []deploymentPayload `json:"activeDeployments"`
}

type deploymentPayload struct {
	WalletAddress string `json:"walletAddress"`
	NetworkKey    string `json:"networkKey"`
	Active        bool   `json:"active"`
	Status        string `json:"status"`
}

// GetWallet fetches and filters the caller's record.
func (d *HTTPDirectory) GetWallet(ctx context.Context, callerID string, walletAddress common.Address) (*WalletRecord, error) {
	u := fmt.Sprintf("%s/wallets/%s", d.baseURL, url.PathEscape(callerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "wallet directory unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.RPCConnectionFailed, err, "read directory response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.RPCConnectionFailed, "directory status %d: %s", resp.StatusCode, string(body))
	}

	var payload walletRecordPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	rec := &WalletRecord{CallerID: payload.CallerID}
	for _, dp := range payload.Deployments {
		addr := common.HexToAddress(dp.WalletAddress)
		if walletAddress != (common.Address{}) && addr != walletAddress {
			continue
		}
		rec.ActiveDeployments = append(rec.ActiveDeployments, domain.WalletDeployment{
			CallerID:      payload.CallerID,
			WalletAddress: addr,
			NetworkKey:    domain.NetworkKey(dp.NetworkKey),
			Active:        dp.Active,
			Status:        dp.Status,
		})
	}
	return rec, nil
}
