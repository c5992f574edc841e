package dto

import (
	"testing"

	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/securemem"

	"github.com/gin-gonic/gin/binding"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(v interface{}) error {
	return binding.Validator.ValidateStruct(v)
}

func TestInsertRequest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", "e1.5:secret:abc", true},
		{"smallest unit", "e0.00000001:secret:abc", true},
		{"colon in secret", "e1:secret:a:b", true},
		{"empty", "", false},
		{"public token", "e1:public:abc", false},
		{"no prefix", "1:secret:abc", false},
		{"empty secret", "e1:secret:", false},
		{"zero amount", "e0:secret:abc", false},
		{"too precise", "e0.000000001:secret:abc", false},
		{"garbage", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&InsertRequest{Token: tt.token})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReplaceRequest_Validation(t *testing.T) {
	valid := ReplaceRequest{
		Inputs:  []int64{1, 2},
		Outputs: []ReplaceOutput{{Amount: "1.5", Mine: true}},
	}
	require.NoError(t, validate(&valid))

	tests := []struct {
		name string
		req  ReplaceRequest
	}{
		{"no inputs", ReplaceRequest{Outputs: valid.Outputs}},
		{"no outputs", ReplaceRequest{Inputs: valid.Inputs}},
		{"zero input id", ReplaceRequest{Inputs: []int64{0}, Outputs: valid.Outputs}},
		{"negative amount", ReplaceRequest{Inputs: valid.Inputs, Outputs: []ReplaceOutput{{Amount: "-1"}}}},
		{"zero amount", ReplaceRequest{Inputs: valid.Inputs, Outputs: []ReplaceOutput{{Amount: "0"}}}},
		{"bad amount", ReplaceRequest{Inputs: valid.Inputs, Outputs: []ReplaceOutput{{Amount: "1,5"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validate(&tt.req))
		})
	}
}

func TestValidIdempotencyKey(t *testing.T) {
	assert.True(t, ValidIdempotencyKey("3f1c-replace.v1_a"))
	assert.False(t, ValidIdempotencyKey(""))
	assert.False(t, ValidIdempotencyKey("has space"))
	assert.False(t, ValidIdempotencyKey("semi;colon"))

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, ValidIdempotencyKey(string(long)))
}

func TestReplaceResponse_PublicDropsTokens(t *testing.T) {
	resp := ReplaceResponse{Outputs: []ReplacedOutputResponse{
		{OutputID: 1, Amount: "1", Public: "e1:public:aa", Token: "e1:secret:bb"},
		{OutputID: 2, Amount: "2", Public: "e2:public:cc"},
	}}

	pub := resp.Public()
	for _, o := range pub.Outputs {
		assert.Empty(t, o.Token)
	}
	assert.Equal(t, "e1:secret:bb", resp.Outputs[0].Token, "original is untouched")
	assert.Equal(t, int64(2), pub.Outputs[1].OutputID)
}

func TestNewOutputResponse(t *testing.T) {
	sec, err := securemem.FromString("abc")
	require.NoError(t, err)
	defer sec.Destroy()

	out := domain.WalletOutput{
		ID:         4,
		Commitment: domain.CommitmentOf([]byte("abc")),
		Secret:     fn.Some(domain.WalletSecret{ID: 1, Secret: sec, Mine: true}),
		Amount:     150_000_000,
		Spent:      true,
	}

	resp := NewOutputResponse(out)
	assert.Equal(t, int64(4), resp.ID)
	assert.Equal(t, "1.5", resp.Amount)
	assert.Equal(t, int64(150_000_000), resp.Units)
	assert.True(t, resp.Spent)
	assert.Equal(t, out.Commitment.Hex(), resp.Commitment)
	assert.Equal(t, "e1.5:public:"+out.Commitment.Hex(), resp.Public)
	assert.NotContains(t, resp.Public, "abc")
}

func TestNewBalanceResponse(t *testing.T) {
	assert.Equal(t, BalanceResponse{Amount: "0.00000042", Units: 42}, NewBalanceResponse(42))
}
