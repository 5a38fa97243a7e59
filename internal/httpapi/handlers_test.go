package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/metrics"
	"tirepos/backend/internal/service"
	"tirepos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, service.Options{Metrics: m, LowStockThreshold: 4})
	auth := NewAuthManager("test-secret-key", time.Hour, repo, nil)

	return New(svc, auth, m, nil, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// call sends a JSON request with the given bearer token. Mutating requests
// carry a fresh CSRF token.
func call(t *testing.T, api *API, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func login(t *testing.T, api *API, userID string, password string) domain.LoginResponse {
	t.Helper()
	res := call(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{UserID: userID, Password: password})
	if res.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d (body: %s)", userID, res.Code, res.Body.String())
	}
	return decodeLogin(t, res)
}

func decodeLogin(t *testing.T, res *httptest.ResponseRecorder) domain.LoginResponse {
	t.Helper()
	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in response")
	}
	return payload
}

// ownerToken logs an owner in, selects a branch and optionally unlocks
// admin capability.
func ownerToken(t *testing.T, api *API, ownerID string, branch string, unlock bool) string {
	t.Helper()
	token := login(t, api, ownerID, "1234").AccessToken

	res := call(t, api, http.MethodPost, "/api/v1/session/branch", token, domain.BranchSelectRequest{StoreID: branch})
	if res.Code != http.StatusOK {
		t.Fatalf("select branch %s: status %d (body: %s)", branch, res.Code, res.Body.String())
	}
	token = decodeLogin(t, res).AccessToken
	if !unlock {
		return token
	}

	res = call(t, api, http.MethodPost, "/api/v1/session/unlock", token, domain.UnlockRequest{Password: "1234"})
	if res.Code != http.StatusOK {
		t.Fatalf("unlock: status %d (body: %s)", res.Code, res.Body.String())
	}
	return decodeLogin(t, res).AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodGet, "/healthz", "", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_OwnerNeedsBranch(t *testing.T) {
	api := newTestAPI(t)
	resp := login(t, api, "250001", "1234")
	if !resp.RequiresBranch || resp.Capability != domain.RoleStaff {
		t.Fatalf("unexpected owner login: %+v", resp)
	}

	res := call(t, api, http.MethodGet, "/api/v1/products", resp.AccessToken, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before branch selection, got %d", res.Code)
	}

	res = call(t, api, http.MethodGet, "/api/v1/stores", resp.AccessToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected branch picker to work without a branch, got %d", res.Code)
	}
	var body struct {
		Stores []domain.StoreAccount `json:"stores"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode stores: %v", err)
	}
	if len(body.Stores) != 2 {
		t.Fatalf("expected two owned branches, got %d", len(body.Stores))
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{UserID: "250001", Password: "wrong"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestSelectForeignBranchForbidden(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "250001", "1234").AccessToken
	res := call(t, api, http.MethodPost, "/api/v1/session/branch", token, domain.BranchSelectRequest{StoreID: "250002-01"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestSaleLifecycleNeedsUnlockForEdits(t *testing.T) {
	api := newTestAPI(t)
	staff := ownerToken(t, api, "250001", "250001-01", false)

	res := call(t, api, http.MethodPost, "/api/v1/sales", staff, domain.SaleCreateRequest{
		PaymentMethod: "CARD",
		TotalAmount:   189000,
		Items:         []domain.SaleItem{{ProductID: "P-1001", Quantity: 1, PriceAtSale: 189000}},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create sale: status %d (body: %s)", res.Code, res.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	edit := domain.SaleUpdateRequest{
		PaymentMethod: "CASH",
		TotalAmount:   378000,
		Items:         []domain.SaleItem{{ProductID: "P-1001", Quantity: 2, PriceAtSale: 189000}},
	}
	if res := call(t, api, http.MethodPut, "/api/v1/sales/"+created.Sale.ID, staff, edit); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff edit, got %d", res.Code)
	}

	wrong := call(t, api, http.MethodPost, "/api/v1/session/unlock", staff, domain.UnlockRequest{Password: "nope"})
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong unlock password, got %d", wrong.Code)
	}

	admin := ownerToken(t, api, "250001", "250001-01", true)
	if res := call(t, api, http.MethodPut, "/api/v1/sales/"+created.Sale.ID, admin, edit); res.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin edit, got %d (body: %s)", res.Code, res.Body.String())
	}
	if res := call(t, api, http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/cancel", admin, nil); res.Code != http.StatusOK {
		t.Fatalf("expected 200 for cancel, got %d (body: %s)", res.Code, res.Body.String())
	}
	if res := call(t, api, http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/cancel", admin, nil); res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second cancel, got %d", res.Code)
	}

	other := ownerToken(t, api, "250002", "250002-01", true)
	if res := call(t, api, http.MethodGet, "/api/v1/sales/"+created.Sale.ID, other, nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign sale, got %d", res.Code)
	}
}

func TestTransferStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", domain.AllStores, false)

	res := call(t, api, http.MethodPost, "/api/v1/transfers", token, domain.StockTransferRequest{
		ProductID: "P-1001", FromStoreID: "250001-01", ToStoreID: "250001-02", Quantity: 3,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = call(t, api, http.MethodPost, "/api/v1/transfers", token, domain.StockTransferRequest{
		ProductID: "P-1001", FromStoreID: "250001-01", ToStoreID: "250001-02", Quantity: 100,
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overdraw, got %d", res.Code)
	}

	res = call(t, api, http.MethodPost, "/api/v1/transfers", token, domain.StockTransferRequest{
		ProductID: "P-1001", FromStoreID: "250001-01", ToStoreID: "250002-01", Quantity: 1,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-tenant transfer, got %d", res.Code)
	}

	res = call(t, api, http.MethodGet, "/api/v1/transfers?limit=10", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 listing transfers, got %d", res.Code)
	}
	var body struct {
		Transfers []domain.StockTransferRecord `json:"transfers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode transfers: %v", err)
	}
	if len(body.Transfers) != 1 {
		t.Fatalf("expected one applied transfer, got %d", len(body.Transfers))
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", "250001-01", false)

	res := call(t, api, http.MethodPost, "/api/v1/reservations", token, domain.ReservationCreateRequest{
		CustomerName: "Jung Hoon",
		Date:         "20/11/2025",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["field"] != "date" {
		t.Fatalf("expected field=date, got %v", body["field"])
	}
}

func TestSalesSummaryCSV(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", domain.AllStores, false)

	res := call(t, api, http.MethodGet, "/api/v1/reports/sales-summary?date=2025-11-02&format=csv", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	body := res.Body.String()
	for _, want := range []string{
		"section,key,value",
		"summary,date,2025-11-02",
		"summary,total_amount,448000",
		"payment,CARD_sales,1",
		"store,250001-01_total_amount,448000",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in csv:\n%s", want, body)
		}
	}
}

func TestAdminOwnerRoutes(t *testing.T) {
	api := newTestAPI(t)
	owner := ownerToken(t, api, "250001", "250001-01", true)
	if res := call(t, api, http.MethodGet, "/api/v1/admin/owners", owner, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner on console route, got %d", res.Code)
	}

	super := login(t, api, "admin", "admin1234").AccessToken
	res := call(t, api, http.MethodPost, "/api/v1/admin/owners", super, domain.OwnerCreateRequest{Name: "Mirae Tire", RegionCode: "ICN"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var created domain.OwnerResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode owner: %v", err)
	}
	if len(created.Stores) != 1 || created.Stores[0].ID != created.Owner.ID+"-01" {
		t.Fatalf("unexpected owner response: %+v", created)
	}

	res = call(t, api, http.MethodPost, "/api/v1/admin/owners/"+created.Owner.ID+"/branches", super, domain.BranchCreateRequest{RegionCode: "SEL"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for branch, got %d (body: %s)", res.Code, res.Body.String())
	}

	// The new owner signs in with the default password.
	login(t, api, created.Owner.ID, "1234")

	res = call(t, api, http.MethodDelete, "/api/v1/admin/owners/"+created.Owner.ID, super, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d (body: %s)", res.Code, res.Body.String())
	}
	res = call(t, api, http.MethodDelete, "/api/v1/admin/owners/"+created.Owner.ID, super, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for second delete, got %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", "250001-01", false)
	res := call(t, api, http.MethodDelete, "/api/v1/products", token, nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
