package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	factoryerrors "zombiefactory/internal/errors"
	"zombiefactory/pkg/models"
)

// fakeClient 可控的合约访问桩
type fakeClient struct {
	submitHash common.Hash
	submitErr  error
	record     *models.ZombieRecord
	fetchErr   error
	lastName   string
	lastID     uint64
}

func (f *fakeClient) SubmitCreation(ctx context.Context, name string) (common.Hash, error) {
	f.lastName = name
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.submitHash, nil
}

func (f *fakeClient) FetchRecord(ctx context.Context, id uint64) (*models.ZombieRecord, error) {
	f.lastID = id
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.record, nil
}

type fakeProgress struct {
	stats map[string]interface{}
}

func (f *fakeProgress) Stats() map[string]interface{} { return f.stats }

func newTestServer(client *fakeClient, progress ProgressReader, events *EventBuffer) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(client, progress, events, ":0", logger)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil, nil)
	w := doRequest(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestCreateZombie(t *testing.T) {
	client := &fakeClient{submitHash: common.HexToHash("0xdeadbeef")}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/zombies", `{"name":"Zombie Bob"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "Zombie Bob", client.lastName)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, client.submitHash.Hex(), resp["tx_hash"])
	assert.Equal(t, "submitted", resp["status"])
}

func TestCreateZombie_EmptyName(t *testing.T) {
	client := &fakeClient{}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/zombies", `{"name":""}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	// 非法名称在入口拦截，不触发链上调用
	assert.Empty(t, client.lastName)
}

func TestCreateZombie_NameTooLong(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil, nil)

	body := fmt.Sprintf(`{"name":%q}`, strings.Repeat("a", 65))
	w := doRequest(t, s, http.MethodPost, "/api/v1/zombies", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateZombie_SimulationReverted(t *testing.T) {
	client := &fakeClient{
		submitErr: factoryerrors.SimulationReverted(errors.New("execution reverted"), "Bob"),
	}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/zombies", `{"name":"Bob"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateZombie_SubmissionFailed(t *testing.T) {
	client := &fakeClient{
		submitErr: factoryerrors.SubmissionFailed(errors.New("nonce too low")),
	}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodPost, "/api/v1/zombies", `{"name":"Bob"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetZombie(t *testing.T) {
	client := &fakeClient{
		record: &models.ZombieRecord{Name: "Gopher", DNA: big.NewInt(1234567890123456)},
	}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/zombies/42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(42), client.lastID)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Gopher", resp["name"])
	assert.Equal(t, "1234567890123456", resp["dna"])
}

func TestGetZombie_InvalidID(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/zombies/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetZombie_ReadFailed(t *testing.T) {
	client := &fakeClient{
		fetchErr: factoryerrors.ReadFailed(errors.New("missing trie node"), 42),
	}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/zombies/42", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetZombieDetails(t *testing.T) {
	client := &fakeClient{
		record: &models.ZombieRecord{Name: "Gopher", DNA: big.NewInt(1234567890123456)},
	}
	s := newTestServer(client, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/zombies/7/details", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var details models.ZombieDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, uint64(7), details.ZombieID)
	assert.Equal(t, "Gopher", details.ZombieName)
	assert.Equal(t, models.ZombieDescription, details.ZombieDescription)
	assert.Equal(t, 6, details.HeadChoice)
	assert.Equal(t, 2, details.EyeChoice)
	assert.Equal(t, 3, details.ShirtChoice)
	assert.Equal(t, 280, details.SkinColorChoice)
	assert.Equal(t, 324, details.EyeColorChoice)
	assert.Equal(t, 43, details.ClothesColorChoice)
}

func TestGetRecentEvents(t *testing.T) {
	buffer := NewEventBuffer(10)
	for i := 1; i <= 3; i++ {
		require.NoError(t, buffer.WriteEvent(&models.NewZombieEvent{
			ZombieID: uint64(i),
			Name:     fmt.Sprintf("zombie-%d", i),
			DNA:      big.NewInt(int64(i)),
		}))
	}

	s := newTestServer(&fakeClient{}, nil, buffer)
	w := doRequest(t, s, http.MethodGet, "/api/v1/events/recent", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count  int                      `json:"count"`
		Events []*models.NewZombieEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	// 新的事件在前
	assert.Equal(t, uint64(3), resp.Events[0].ZombieID)
	assert.Equal(t, uint64(1), resp.Events[2].ZombieID)
}

func TestGetProgress(t *testing.T) {
	progress := &fakeProgress{stats: map[string]interface{}{
		"last_scanned_block": uint64(100),
		"total_events":       uint64(5),
	}}
	s := newTestServer(&fakeClient{}, progress, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/progress", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "last_scanned_block")
}

func TestGetProgress_Unavailable(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/api/v1/progress", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEventBuffer_Eviction(t *testing.T) {
	buffer := NewEventBuffer(2)
	for i := 1; i <= 5; i++ {
		require.NoError(t, buffer.WriteEvent(&models.NewZombieEvent{ZombieID: uint64(i), DNA: big.NewInt(1)}))
	}

	recent := buffer.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(5), recent[0].ZombieID)
	assert.Equal(t, uint64(4), recent[1].ZombieID)
}
