package user_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/user"
)

type fixture struct {
	svc    *user.Service
	store  *fakeStore
	queue  *fakeQueue
	tokens *auth.Service
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := auth.NewService(auth.Config{Secret: "test-secret"})
	require.NoError(t, err)

	store := newFakeStore()
	queue := &fakeQueue{}
	svc, err := user.NewService(user.ServiceConfig{
		Store:   store,
		Secrets: user.SecretStore{R: rdb, MaxAttempts: 3},
		Tokens:  tokens,
		Mail:    queue,
		Locker:  lock.Locker{R: rdb, Prefix: "lock:", RetryBackoff: 5 * time.Millisecond, MaxWait: time.Second},
		OTPTTL:  10 * time.Minute,
	})
	require.NoError(t, err)
	return fixture{svc: svc, store: store, queue: queue, tokens: tokens, mr: mr}
}

var codePattern = regexp.MustCompile(`<strong>(\d{4})</strong>`)

func emailedCode(t *testing.T, q *fakeQueue) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(q.last().HTML)
	require.Len(t, m, 2)
	return m[1]
}

func addUser(t *testing.T, f fixture, email, password string) user.User {
	t.Helper()
	u, err := f.svc.Add(context.Background(), user.CreateInput{
		Username: "Kasir",
		Email:    email,
		Phone:    "0812" + email[:3],
		Password: password,
	})
	require.NoError(t, err)
	return u
}

func TestAddDefaultsAndHashes(t *testing.T) {
	f := newFixture(t)
	u := addUser(t, f, "Kasir@Example.com", "rahasia123")

	require.Equal(t, "kasir@example.com", u.Email)
	require.Equal(t, user.RoleStaff, u.Role)
	require.Equal(t, user.StatusActive, u.Status)
	require.NotEqual(t, "rahasia123", u.PasswordHash)

	ok, legacy, err := user.VerifyPassword("rahasia123", f.store.hash(u.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, legacy)
}

func TestAddRejectsDuplicatesAndWeakInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addUser(t, f, "a@example.com", "rahasia123")

	_, err := f.svc.Add(ctx, user.CreateInput{Username: "B", Email: "A@example.com", Phone: "0899", Password: "rahasia123"})
	require.True(t, common.HasCode(err, "EMAIL_EXISTS"))

	_, err = f.svc.Add(ctx, user.CreateInput{Username: "B", Email: "b@example.com", Phone: "0812a@e", Password: "rahasia123"})
	require.True(t, common.HasCode(err, "PHONE_EXISTS"))

	_, err = f.svc.Add(ctx, user.CreateInput{Username: "B", Email: "b@example.com", Phone: "0811", Password: "short"})
	require.True(t, common.HasCode(err, "WEAK_PASSWORD"))

	_, err = f.svc.Add(ctx, user.CreateInput{Username: "B", Email: "b@example.com", Phone: "0811", Password: "rahasia123", Role: "OWNER"})
	require.True(t, common.HasCode(err, "VALIDATION_ERROR"))
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	before := testutil.ToFloat64(obs.LoginTotal.WithLabelValues("success"))
	res, err := f.svc.Login(context.Background(), " KASIR@example.com ", "rahasia123")
	require.NoError(t, err)
	require.Equal(t, u.ID, res.User.ID)
	require.Equal(t, "Bearer", res.TokenType)
	require.Equal(t, before+1, testutil.ToFloat64(obs.LoginTotal.WithLabelValues("success")))

	claims, err := f.tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID)
	require.Equal(t, "STAFF", claims.Role)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	_, err := f.svc.Login(ctx, "nobody@example.com", "rahasia123")
	require.True(t, common.HasCode(err, "INVALID_CREDENTIALS"))

	_, err = f.svc.Login(ctx, "kasir@example.com", "wrong-password")
	require.True(t, common.HasCode(err, "INVALID_CREDENTIALS"))

	_, err = f.svc.SetStatus(ctx, u.ID, user.StatusInactive)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "kasir@example.com", "rahasia123")
	require.True(t, common.HasCode(err, "INACTIVE"))
}

func TestLoginRehashesLegacyBcrypt(t *testing.T) {
	f := newFixture(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := f.store.seed(user.User{Username: "Lama", Email: "lama@example.com", Phone: "0800", PasswordHash: string(legacy)})

	_, err = f.svc.Login(context.Background(), "lama@example.com", "rahasia123")
	require.NoError(t, err)
	require.Equal(t, 1, f.store.hashSets)

	ok, isLegacy, err := user.VerifyPassword("rahasia123", f.store.hash(u.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, isLegacy)
}

func TestOTPResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	issued, err := f.svc.RequestOTP(ctx, "kasir@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, issued.UserID)
	require.Equal(t, "kasir@example.com", f.queue.last().To)
	code := emailedCode(t, f.queue)

	grant, err := f.svc.VerifyOTP(ctx, u.ID, code)
	require.NoError(t, err)
	require.NotEmpty(t, grant.ResetToken)

	_, err = f.svc.VerifyOTP(ctx, u.ID, code)
	require.True(t, common.HasCode(err, "INVALID_OTP"), "otp is single use")

	require.NoError(t, f.svc.ResetPassword(ctx, u.ID, grant.ResetToken, "baru-rahasia"))
	err = f.svc.ResetPassword(ctx, u.ID, grant.ResetToken, "baru-rahasia")
	require.True(t, common.HasCode(err, "INVALID_TOKEN"), "reset token is single use")

	_, err = f.svc.Login(ctx, "kasir@example.com", "baru-rahasia")
	require.NoError(t, err)
}

func TestRequestOTPReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	_, err := f.svc.RequestOTP(ctx, "kasir@example.com")
	require.NoError(t, err)
	first := emailedCode(t, f.queue)
	_, err = f.svc.RequestOTP(ctx, "kasir@example.com")
	require.NoError(t, err)
	second := emailedCode(t, f.queue)

	if first != second {
		_, err = f.svc.VerifyOTP(ctx, u.ID, first)
		require.True(t, common.HasCode(err, "INVALID_OTP"))
	}
	_, err = f.svc.VerifyOTP(ctx, u.ID, second)
	require.NoError(t, err)
}

func TestRequestOTPConcurrentKeepsLastEmailedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestOTP(ctx, "kasir@example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 5, f.queue.count())

	_, err := f.svc.VerifyOTP(ctx, u.ID, emailedCode(t, f.queue))
	require.NoError(t, err)
}

func TestRequestOTPErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	_, err := f.svc.RequestOTP(ctx, "nobody@example.com")
	require.True(t, common.HasCode(err, "NOT_FOUND"))

	f.queue.err = errors.New("queue down")
	_, err = f.svc.RequestOTP(ctx, "kasir@example.com")
	require.ErrorContains(t, err, "queue down")
	require.False(t, f.mr.Exists("user:otp:"+u.ID), "undelivered otp is discarded")
}

func TestVerifyOTPBurnsCodeAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	_, err := f.svc.RequestOTP(ctx, "kasir@example.com")
	require.NoError(t, err)
	code := emailedCode(t, f.queue)
	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}

	for range 3 {
		_, err = f.svc.VerifyOTP(ctx, u.ID, wrong)
		require.True(t, common.HasCode(err, "INVALID_OTP"))
	}
	_, err = f.svc.VerifyOTP(ctx, u.ID, code)
	require.True(t, common.HasCode(err, "INVALID_OTP"))
}

func TestVerifyOTPExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	_, err := f.svc.RequestOTP(ctx, "kasir@example.com")
	require.NoError(t, err)
	f.mr.FastForward(11 * time.Minute)

	_, err = f.svc.VerifyOTP(ctx, u.ID, emailedCode(t, f.queue))
	require.True(t, common.HasCode(err, "INVALID_OTP"))
}

func TestResetPasswordErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")

	err := f.svc.ResetPassword(ctx, u.ID, "token", "short")
	require.True(t, common.HasCode(err, "WEAK_PASSWORD"))

	err = f.svc.ResetPassword(ctx, "00000000-0000-0000-0000-000000000001", "token", "baru-rahasia")
	require.True(t, common.HasCode(err, "NOT_FOUND"))

	err = f.svc.ResetPassword(ctx, u.ID, "forged", "baru-rahasia")
	require.True(t, common.HasCode(err, "INVALID_TOKEN"))
}

func TestUpdateAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := addUser(t, f, "kasir@example.com", "rahasia123")
	other := addUser(t, f, "lain@example.com", "rahasia123")

	name := "Kasir Pagi"
	role := user.RoleAdmin
	updated, err := f.svc.Update(ctx, u.ID, user.UpdateInput{Username: &name, Role: &role})
	require.NoError(t, err)
	require.Equal(t, "Kasir Pagi", updated.Username)
	require.Equal(t, user.RoleAdmin, updated.Role)

	email := "LAIN@example.com"
	_, err = f.svc.Update(ctx, u.ID, user.UpdateInput{Email: &email})
	require.True(t, common.HasCode(err, "EMAIL_EXISTS"))

	_, err = f.svc.Update(ctx, "00000000-0000-0000-0000-000000000001", user.UpdateInput{Username: &name})
	require.True(t, common.HasCode(err, "NOT_FOUND"))

	_, err = f.svc.SetStatus(ctx, other.ID, "SUSPENDED")
	require.True(t, common.HasCode(err, "VALIDATION_ERROR"))

	_, err = f.svc.Get(ctx, "not-a-uuid")
	require.True(t, common.HasCode(err, "VALIDATION_ERROR"))

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
}
