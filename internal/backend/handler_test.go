package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/config"
	"marketplace-bff/internal/logging"
	"marketplace-bff/internal/models"
	"marketplace-bff/internal/services"
)

const secret = "test-secret"

// newRemote serves a fresh Store over HTTP and returns a ready client for it.
func newRemote(t *testing.T) *services.ServiceClient {
	t.Helper()

	mux := http.NewServeMux()
	NewHandler(NewStore(), logging.Discard()).Routes(mux)
	srv := httptest.NewServer(auth.NewMiddleware(secret).Identify(mux))
	t.Cleanup(srv.Close)

	client := services.NewServiceClient(&config.Config{
		BackendURL:       srv.URL,
		BackendTimeout:   time.Second,
		ReadyAttempts:    1,
		ReadyDelay:       time.Millisecond,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}, logging.Discard())
	require.NoError(t, client.WaitReady(context.Background()))
	return client
}

func as(t *testing.T, principal string) context.Context {
	t.Helper()
	token, err := auth.NewIssuer(secret, time.Hour).Issue(principal)
	require.NoError(t, err)
	return auth.WithIdentity(context.Background(), auth.Identity{Principal: principal, Token: token})
}

func TestRemoteRoundTrip(t *testing.T) {
	client := newRemote(t)
	ctx := as(t, alice)

	require.NoError(t, client.InitializeMarketplace(ctx))
	categories, err := client.ListCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, categories)
	cat := categories[0]

	profile, err := client.UpsertEntrepreneurProfile(ctx, models.ProfileUpsert{BusinessName: "Bakery", Contact: "a@b.c", Description: "Bread", CategoryID: cat.ID.Ptr()})
	require.NoError(t, err)
	assert.Equal(t, alice, profile.CreatorPrincipal)

	product, err := client.UpsertProduct(ctx, models.ProductUpsert{EntrepreneurID: profile.ID, Name: "Bread", Description: "Sourdough", Price: 1999, CategoryID: cat.ID})
	require.NoError(t, err)

	got, err := client.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Price(1999), got.Price)

	_, err = client.CreateInquiry(context.Background(), models.InquiryDraft{ProductID: product.ID.Ptr(), EntrepreneurID: profile.ID.Ptr(), CustomerName: "Bo", CustomerContact: "bo@x.y", Message: "Hi"})
	require.NoError(t, err)
	inquiries, err := client.ListInquiriesByEntrepreneur(ctx, profile.ID)
	require.NoError(t, err)
	assert.Len(t, inquiries, 1)

	role, err := client.CallerRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	admin, err := client.IsCallerAdmin(context.Background())
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestRemoteCallerProfile(t *testing.T) {
	client := newRemote(t)
	ctx := as(t, bob)

	profile, err := client.GetCallerProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	require.NoError(t, client.SaveCallerProfile(ctx, models.UserProfile{Name: "Bob", Email: "bob@example.com"}))
	profile, err = client.GetCallerProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Bob", profile.Name)

	own, err := client.GetUserProfile(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", own.Email)
}

func TestRemoteErrors(t *testing.T) {
	client := newRemote(t)

	_, err := client.GetProfile(context.Background(), 77)
	assert.True(t, apperr.IsNotFound(err))

	err = client.SaveCallerProfile(context.Background(), models.UserProfile{Name: "Anon"})
	var remote *apperr.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusForbidden, remote.Status)
}

func TestHandlerRejectsBadIDs(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(NewStore(), logging.Discard()).Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"VALIDATION_FAILED"`)
}
