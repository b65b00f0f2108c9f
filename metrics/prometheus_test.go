package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstore/errormsg"
	"chatstore/storage"
)

func TestInteractionInsertedLabelsErrorType(t *testing.T) {
	sink := NewSink(prometheus.NewRegistry())

	code := errormsg.ErrorTypeDecryptionFailure.Code()
	sink.InteractionInserted(storage.InteractionRow{RecordType: storage.RecordTypeError, ErrorType: &code})
	sink.InteractionInserted(storage.InteractionRow{RecordType: storage.RecordTypeError, ErrorType: &code})

	unknown := int64(99)
	sink.InteractionInserted(storage.InteractionRow{RecordType: storage.RecordTypeError, ErrorType: &unknown})
	sink.InteractionInserted(storage.InteractionRow{RecordType: "incoming"})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.interactionsInserted.WithLabelValues("error", "decryption_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.interactionsInserted.WithLabelValues("error", "unrecognized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.interactionsInserted.WithLabelValues("incoming", "none")))
}

func TestSinksAreRegistryScoped(t *testing.T) {
	first := NewSink(prometheus.NewRegistry())
	second := NewSink(prometheus.NewRegistry())

	first.ReceiverOutcome("decrypted")

	assert.Equal(t, 1.0, testutil.ToFloat64(first.receiverOutcomes.WithLabelValues("decrypted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.receiverOutcomes.WithLabelValues("decrypted")))
}

func TestHandlerExposesCounters(t *testing.T) {
	sink := NewSink(nil)
	sink.ReceiverOutcome("missing_session")

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatstore_receiver_outcomes_total{outcome="missing_session"} 1`)
}
