package appstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(fake *fakeAPI, m *metrics.Metrics) *Verifier {
	return NewVerifier(fake, NewDecoder(nil), VerifierConfig{
		Now:     func() time.Time { return testNow },
		Logger:  zerolog.Nop(),
		Metrics: m,
	})
}

func statusResponse(blobs ...string) *api.SubscriptionStatusResponse {
	resp := &api.SubscriptionStatusResponse{}
	for _, blob := range blobs {
		resp.Data = append(resp.Data, api.SubscriptionGroupItem{SignedTransactionInfo: blob, Status: api.SubscriptionStatusActive})
	}
	return resp
}

func TestVerify_CanonicalTrial(t *testing.T) {
	expires := testNow.Add(7 * 24 * time.Hour)
	fake := &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{
		"1000000123456789": statusResponse(unsignedBlob(t, txPayload("1000000123456789", expires, true))),
	}}

	outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1000000123456789"})

	resolved, ok := outcome.(Resolved)
	require.True(t, ok, "got %#v", outcome)
	result := resolved.Result()
	assert.Equal(t, models.StatusTrial, result.Status)
	assert.Equal(t, "1000000123456789", result.OriginalTransactionID)
	require.NotNil(t, result.TrialEndsAt)
	assert.True(t, result.TrialEndsAt.Equal(expires))
	assert.False(t, result.NeedsServerValidation)
	assert.Empty(t, fake.txCalls)
}

func TestVerify_Idempotent(t *testing.T) {
	fake := &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{
		"1": statusResponse(unsignedBlob(t, txPayload("1", testNow.Add(time.Hour), false))),
	}}
	v := newTestVerifier(fake, nil)

	first := v.Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	second := v.Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	assert.Equal(t, first, second)
}

func TestVerify_ResolutionChain(t *testing.T) {
	fake := &fakeAPI{
		transactions: map[string]*api.TransactionInfoResponse{
			"abc": {SignedTransactionInfo: unsignedBlob(t, txPayload("X", testNow.Add(time.Hour), false))},
		},
		statuses: map[string]*api.SubscriptionStatusResponse{
			"X": statusResponse(unsignedBlob(t, txPayload("X", testNow.Add(time.Hour), false))),
		},
	}

	outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{TransactionID: "abc"})

	require.IsType(t, Resolved{}, outcome)
	assert.Equal(t, models.StatusActive, outcome.Result().Status)
	assert.Equal(t, "X", outcome.Result().OriginalTransactionID)
	assert.Equal(t, []string{"abc"}, fake.txCalls)
	assert.Equal(t, []string{"X"}, fake.statusCalls)
}

func TestVerify_Unresolvable(t *testing.T) {
	tests := map[string]*fakeAPI{
		"no canonical id": {transactions: map[string]*api.TransactionInfoResponse{
			"abc": {SignedTransactionInfo: unsignedBlob(t, map[string]any{"transactionId": "abc"})},
		}},
		"unknown transaction": {},
		"malformed blob": {transactions: map[string]*api.TransactionInfoResponse{
			"abc": {SignedTransactionInfo: "garbage"},
		}},
		"api failure": {txErr: fmt.Errorf("boom: %w", ErrInconclusive)},
	}

	for name, fake := range tests {
		t.Run(name, func(t *testing.T) {
			outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{TransactionID: "abc"})

			failed, ok := outcome.(Failed)
			require.True(t, ok)
			assert.Equal(t, ReasonUnresolvable, failed.Reason)
			assert.True(t, failed.Reason.ClientError())
			assert.Contains(t, failed.Message, "originalTransactionId")
			assert.Empty(t, fake.statusCalls)

			result := failed.Result()
			assert.Equal(t, models.StatusExpired, result.Status)
			assert.Equal(t, "abc", result.OriginalTransactionID)
			assert.False(t, result.NeedsServerValidation)
		})
	}
}

func TestVerify_NoIdentifier(t *testing.T) {
	fake := &fakeAPI{}
	for _, req := range []models.VerifyRequest{{}, {OriginalTransactionID: "  ", TransactionID: "\t"}} {
		outcome := newTestVerifier(fake, nil).Verify(context.Background(), req)
		failed, ok := outcome.(Failed)
		require.True(t, ok)
		assert.Equal(t, ReasonNoIdentifier, failed.Reason)
		assert.Equal(t, MsgNoIdentifier, failed.Result().Error)
	}
	assert.Empty(t, fake.statusCalls)
	assert.Empty(t, fake.txCalls)
}

func TestVerify_FailClosed(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeAPI
		message string
	}{
		{"api failure", &fakeAPI{statusErr: fmt.Errorf("503 x3: %w", ErrInconclusive)}, MsgInconclusive},
		{"nil response", &fakeAPI{}, MsgNoData},
		{"empty data", &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{"1": {}}}, MsgNoData},
		{"undecodable records", &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{"1": statusResponse("x", "y.z")}}, MsgNoTransaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := newTestVerifier(tt.fake, nil).Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})

			failed, ok := outcome.(Failed)
			require.True(t, ok)
			assert.Equal(t, ReasonInconclusive, failed.Reason)
			assert.False(t, failed.Reason.ClientError())

			result := outcome.Result()
			assert.Equal(t, models.StatusExpired, result.Status)
			assert.False(t, result.NeedsServerValidation)
			assert.Equal(t, tt.message, result.Error)
			assert.Equal(t, "1", result.OriginalTransactionID)
			assert.Nil(t, result.TrialEndsAt)
		})
	}
}

func TestVerify_CanonicalFailureDoesNotFallBack(t *testing.T) {
	fake := &fakeAPI{statusErr: errors.New("down")}
	outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{
		OriginalTransactionID: "1",
		TransactionID:         "abc",
	})
	require.IsType(t, Failed{}, outcome)
	assert.Empty(t, fake.txCalls)
}

func TestVerify_SkipsBadRecords(t *testing.T) {
	fake := &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{
		"1": statusResponse("broken", unsignedBlob(t, txPayload("1", testNow.Add(time.Hour), false))),
	}}
	outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	assert.Equal(t, models.StatusActive, outcome.Result().Status)
}

func TestVerify_NestedLastTransactions(t *testing.T) {
	fake := &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{
		"1": {Data: []api.SubscriptionGroupItem{{
			SubscriptionGroupIdentifier: "grp",
			LastTransactions: []api.LastTransaction{
				{OriginalTransactionID: "1", Status: 2, SignedTransactionInfo: unsignedBlob(t, txPayload("1", testNow.Add(-time.Hour), false))},
				{OriginalTransactionID: "1", Status: 1, SignedTransactionInfo: unsignedBlob(t, txPayload("1", testNow.Add(time.Hour), false))},
			},
		}}},
	}}
	outcome := newTestVerifier(fake, nil).Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	assert.Equal(t, models.StatusActive, outcome.Result().Status)
}

// blockingAPI waits on the caller's context and records how each call ended.
type blockingAPI struct {
	mu        sync.Mutex
	txInfo    *api.TransactionInfoResponse
	deadlines []time.Time
	statusErr error
}

func (b *blockingAPI) noteDeadline(ctx context.Context) {
	d, _ := ctx.Deadline()
	b.mu.Lock()
	b.deadlines = append(b.deadlines, d)
	b.mu.Unlock()
}

func (b *blockingAPI) GetSubscriptionStatuses(ctx context.Context, _ string) (*api.SubscriptionStatusResponse, error) {
	b.noteDeadline(ctx)
	select {
	case <-ctx.Done():
		b.mu.Lock()
		b.statusErr = ctx.Err()
		b.mu.Unlock()
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, errors.New("context was never cancelled")
	}
}

func (b *blockingAPI) GetTransactionInfo(ctx context.Context, _ string) (*api.TransactionInfoResponse, error) {
	b.noteDeadline(ctx)
	return b.txInfo, nil
}

func TestVerify_Deadline(t *testing.T) {
	fake := &blockingAPI{}
	v := NewVerifier(fake, nil, VerifierConfig{Deadline: 20 * time.Millisecond, Now: func() time.Time { return testNow }, Logger: zerolog.Nop()})

	start := time.Now()
	outcome := v.Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	assert.Less(t, time.Since(start), 2*time.Second)

	failed, ok := outcome.(Failed)
	require.True(t, ok)
	assert.Equal(t, ReasonInconclusive, failed.Reason)
	assert.ErrorIs(t, fake.statusErr, context.DeadlineExceeded)
	assert.Equal(t, models.StatusExpired, outcome.Result().Status)
}

func TestVerify_DeadlineSpansResolveAndVerify(t *testing.T) {
	fake := &blockingAPI{txInfo: &api.TransactionInfoResponse{
		SignedTransactionInfo: unsignedBlob(t, txPayload("1", testNow.Add(time.Hour), false)),
	}}
	v := NewVerifier(fake, nil, VerifierConfig{Deadline: 20 * time.Millisecond, Now: func() time.Time { return testNow }, Logger: zerolog.Nop()})

	outcome := v.Verify(context.Background(), models.VerifyRequest{TransactionID: "abc"})

	failed, ok := outcome.(Failed)
	require.True(t, ok)
	assert.Equal(t, ReasonInconclusive, failed.Reason)
	assert.Equal(t, "1", failed.TransactionID)
	assert.ErrorIs(t, fake.statusErr, context.DeadlineExceeded)

	require.Len(t, fake.deadlines, 2)
	assert.False(t, fake.deadlines[0].IsZero())
	assert.Equal(t, fake.deadlines[0], fake.deadlines[1], "one deadline covers both calls")
}

func TestVerify_NoDeadline(t *testing.T) {
	fake := &blockingAPI{txInfo: &api.TransactionInfoResponse{}}
	v := NewVerifier(fake, nil, VerifierConfig{Logger: zerolog.Nop()})

	outcome := v.Verify(context.Background(), models.VerifyRequest{TransactionID: "abc"})
	assert.Equal(t, ReasonUnresolvable, outcome.(Failed).Reason)
	require.Len(t, fake.deadlines, 1)
	assert.True(t, fake.deadlines[0].IsZero())
}

func TestVerify_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	fake := &fakeAPI{statuses: map[string]*api.SubscriptionStatusResponse{
		"1": statusResponse(unsignedBlob(t, txPayload("1", testNow.Add(time.Hour), false))),
	}}
	v := newTestVerifier(fake, m)

	v.Verify(context.Background(), models.VerifyRequest{OriginalTransactionID: "1"})
	v.Verify(context.Background(), models.VerifyRequest{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("failed_no_identifier")))
}
