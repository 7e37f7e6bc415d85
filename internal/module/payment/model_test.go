package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsActiveCredit(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{
			name: "succeeded with credits and unconsumed",
			tx:   Transaction{Status: StatusSucceeded, AvailableCredits: 1},
			want: true,
		},
		{
			name: "consumed credit",
			tx:   Transaction{Status: StatusSucceeded, AvailableCredits: 1, CreditConsumedAt: &now},
			want: false,
		},
		{
			name: "no credits left",
			tx:   Transaction{Status: StatusSucceeded, AvailableCredits: 0},
			want: false,
		},
		{
			name: "still processing",
			tx:   Transaction{Status: StatusProcessing, AvailableCredits: 1},
			want: false,
		},
		{
			name: "failed",
			tx:   Transaction{Status: StatusFailed, AvailableCredits: 1},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.IsActiveCredit())
		})
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	md := TransactionMetadata{DeviceID: "dev-1", UserID: "user-1", Email: "a@b.com"}
	tx := Transaction{Metadata: newMetadata(md)}
	assert.Equal(t, md, tx.Metadata.Data())
}
