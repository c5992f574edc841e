package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"webcash-wallet/internal/adapter/http/dto"
	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/service"
	"webcash-wallet/pkg/apperror"
	"webcash-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	defaultPageSize = 100
	maxPageSize     = 1000

	// replaceInflightTTL bounds how long a crashed request can hold its key.
	replaceInflightTTL = time.Minute
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
	cache     ports.IdempotencyCache // nil = no replay protection
	cacheTTL  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewWalletHandler creates a new WalletHandler. cache may be nil.
func NewWalletHandler(walletSvc ports.WalletService, cache ports.IdempotencyCache, cacheTTL time.Duration, log zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		walletSvc: walletSvc,
		cache:     cache,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		log:       log,
	}
}

// GetTerms handles GET /api/v1/terms.
func (h *WalletHandler) GetTerms(c *gin.Context) {
	accepted, err := h.walletSvc.HaveAcceptedTerms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TermsSummaryResponse{AnyAccepted: accepted})
}

// AcceptTerms handles POST /api/v1/terms/accept.
func (h *WalletHandler) AcceptTerms(c *gin.Context) {
	var req dto.TermsRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.walletSvc.AcceptTerms(c.Request.Context(), req.Text); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TermsStatusResponse{Key: service.TermsKey(req.Text), Accepted: true})
}

// TermsStatus handles POST /api/v1/terms/status.
func (h *WalletHandler) TermsStatus(c *gin.Context) {
	var req dto.TermsRequest
	if !bindJSON(c, &req) {
		return
	}

	accepted, err := h.walletSvc.AreTermsAccepted(c.Request.Context(), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TermsStatusResponse{Key: service.TermsKey(req.Text), Accepted: accepted})
}

// Insert handles POST /api/v1/webcash.
func (h *WalletHandler) Insert(c *gin.Context) {
	var req dto.InsertRequest
	if !bindJSON(c, &req) {
		return
	}

	sk, err := domain.ParseSecretWebcash(req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sk.Release()

	id, err := h.walletSvc.Insert(c.Request.Context(), sk, req.Mine)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.InsertResponse{OutputID: id, Public: sk.Public().String()})
}

// ListOutputs handles GET /api/v1/outputs?spent=&limit=&offset=.
func (h *WalletHandler) ListOutputs(c *gin.Context) {
	filter := domain.OutputFilter{Spent: fn.None[bool](), Limit: defaultPageSize}

	if s := c.Query("spent"); s != "" {
		spent, err := strconv.ParseBool(s)
		if err != nil {
			response.Error(c, apperror.Validation("spent must be true or false"))
			return
		}
		filter.Spent = fn.Some(spent)
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit", defaultPageSize); err != nil || filter.Limit < 1 || filter.Limit > maxPageSize {
		response.Error(c, apperror.Validation("limit must be between 1 and "+strconv.Itoa(maxPageSize)))
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil || filter.Offset < 0 {
		response.Error(c, apperror.Validation("offset must not be negative"))
		return
	}

	outs, err := h.walletSvc.ListOutputs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.OutputResponse, len(outs))
	for i, o := range outs {
		items[i] = dto.NewOutputResponse(o)
	}
	response.OK(c, dto.OutputListResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// GetOutput handles GET /api/v1/outputs/:id.
func (h *WalletHandler) GetOutput(c *gin.Context) {
	id, ok := outputID(c)
	if !ok {
		return
	}

	out, err := h.walletSvc.GetOutput(c.Request.Context(), id, false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewOutputResponse(out))
}

// GetOutputSecret handles GET /api/v1/outputs/:id/secret. It is the only
// read endpoint that discloses a spendable token.
func (h *WalletHandler) GetOutputSecret(c *gin.Context) {
	id, ok := outputID(c)
	if !ok {
		return
	}

	out, err := h.walletSvc.GetOutput(c.Request.Context(), id, true)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer out.Release()

	wc := out.Webcash()
	if wc.IsNone() {
		response.Error(c, apperror.ErrNotFound("output secret"))
		return
	}
	token, err := wc.UnsafeFromSome().Reveal()
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	h.log.Info().Int64("output_id", id).Bool("spent", out.Spent).Msg("output secret disclosed")
	response.OK(c, dto.OutputSecretResponse{ID: id, Token: token})
}

// GetBalance handles GET /api/v1/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	total, err := h.walletSvc.Balance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(total))
}

// cachedReplace is what the idempotency cache keeps for a finished replace.
type cachedReplace struct {
	RequestHash string              `json:"request_hash"`
	Response    dto.ReplaceResponse `json:"response"`
}

// Replace handles POST /api/v1/replace. With an Idempotency-Key header and
// a cache configured, a repeated request gets the public part of the first
// result back instead of running again.
func (h *WalletHandler) Replace(c *gin.Context) {
	var req dto.ReplaceRequest
	if !bindJSON(c, &req) {
		return
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key != "" && !dto.ValidIdempotencyKey(key) {
		response.Error(c, apperror.Validation("invalid Idempotency-Key header"))
		return
	}
	ctx := c.Request.Context()
	reqHash := requestHash(req)

	useCache := key != "" && h.cache != nil
	if useCache {
		done, reserved := h.claimKey(c, key, reqHash)
		if done {
			return
		}
		useCache = reserved
	}

	resp, err := h.replace(ctx, req)
	if err != nil {
		if useCache {
			if relErr := h.cache.Release(context.WithoutCancel(ctx), key); relErr != nil {
				h.log.Warn().Err(relErr).Msg("failed to release idempotency key")
			}
		}
		response.Error(c, err)
		return
	}

	if useCache {
		h.remember(context.WithoutCancel(ctx), key, cachedReplace{RequestHash: reqHash, Response: resp.Public()})
	}
	response.OK(c, resp)
}

// claimKey replays a finished request or reserves key for this one. done
// means a response was already written; reserved means the key is held and
// must be set or released.
func (h *WalletHandler) claimKey(c *gin.Context, key, reqHash string) (done, reserved bool) {
	ctx := c.Request.Context()

	raw, err := h.cache.Get(ctx, key)
	if err != nil {
		h.log.Warn().Err(err).Msg("idempotency lookup failed, replace runs without replay protection")
		return false, false
	}
	if raw != nil {
		var prev cachedReplace
		if err := json.Unmarshal(raw, &prev); err != nil {
			h.log.Warn().Err(err).Msg("discarding unreadable idempotency entry")
		} else {
			if prev.RequestHash != reqHash {
				response.Error(c, apperror.Validation("Idempotency-Key was already used for a different request"))
				return true, false
			}
			c.Header(HeaderIdempotentReplayed, "true")
			response.OK(c, prev.Response)
			return true, false
		}
	}

	ok, err := h.cache.Reserve(ctx, key, replaceInflightTTL)
	if err != nil {
		h.log.Warn().Err(err).Msg("idempotency reserve failed, replace runs without replay protection")
		return false, false
	}
	if !ok {
		response.Error(c, apperror.ErrRequestInFlight())
		return true, false
	}
	return false, true
}

func (h *WalletHandler) remember(ctx context.Context, key string, entry cachedReplace) {
	raw, err := json.Marshal(entry)
	if err == nil {
		err = h.cache.Set(ctx, key, raw, h.cacheTTL)
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to cache replace result")
	}
}

// replace loads the inputs, runs the replace and renders the minted
// outputs. Tokens are disclosed only for outputs the wallet does not keep.
func (h *WalletHandler) replace(ctx context.Context, req dto.ReplaceRequest) (dto.ReplaceResponse, error) {
	inputs := make([]domain.WalletOutput, 0, len(req.Inputs))
	for _, id := range req.Inputs {
		out, err := h.walletSvc.GetOutput(ctx, id, false)
		if errors.Is(err, apperror.ErrNotFound("output")) {
			return dto.ReplaceResponse{}, apperror.ErrUnknownInput(id)
		}
		if err != nil {
			return dto.ReplaceResponse{}, err
		}
		inputs = append(inputs, out)
	}

	specs := make([]domain.OutputSpec, len(req.Outputs))
	for i, o := range req.Outputs {
		amount, err := domain.ParseWebcash(o.Amount)
		if err != nil {
			return dto.ReplaceResponse{}, err
		}
		specs[i] = domain.OutputSpec{Amount: amount, Mine: o.Mine, Sweep: o.Sweep}
	}

	minted, err := h.walletSvc.ReplaceWebcash(ctx, h.now(), inputs, specs)
	if err != nil {
		return dto.ReplaceResponse{}, err
	}
	defer func() {
		for _, m := range minted {
			m.Secret.Release()
		}
	}()

	resp := dto.ReplaceResponse{Outputs: make([]dto.ReplacedOutputResponse, len(minted))}
	for i, m := range minted {
		sk := domain.SecretWebcash{Secret: m.Secret.Secret, Amount: specs[i].Amount}
		item := dto.ReplacedOutputResponse{
			OutputID: m.OutputID,
			Amount:   domain.FormatWebcash(sk.Amount),
			Mine:     m.Secret.Mine,
			Public:   sk.Public().String(),
		}
		if !m.Secret.Mine {
			token, err := sk.Reveal()
			if err != nil {
				// Already committed; the token stays readable via the secret endpoint.
				h.log.Error().Err(err).Int64("output_id", m.OutputID).Msg("failed to render minted token")
			}
			item.Token = token
		}
		resp.Outputs[i] = item
	}
	return resp, nil
}

func requestHash(req dto.ReplaceRequest) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func outputID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("output id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
