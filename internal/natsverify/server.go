// Package natsverify answers access token verification requests over NATS
// so services without an HTTP hop can reuse the stateless guard.
package natsverify

import (
	"encoding/json"
	"errors"
	"strconv"

	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/utils"
)

// Verifier checks an access token.  *utils.TokenIssuer implements it.
type Verifier interface {
	Verify(raw string) (*utils.AccessClaims, error)
}

type VerifyHandler struct {
	verifier  Verifier
	log       zerolog.Logger
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK       bool    `json:"ok"`
	UserID   uint64  `json:"user_id,omitempty"`
	Email    string  `json:"email,omitempty"`
	Role     string  `json:"role,omitempty"`
	BranchID *uint64 `json:"branch_id,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func NewVerifyHandler(v Verifier, log zerolog.Logger) *VerifyHandler {
	h := &VerifyHandler{verifier: v, log: log}
	h.respondFn = h.respond
	return h
}

// Subscribe joins queue on subject so replicas share the load.
func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Token == "" {
		h.respondFn(msg, verifyResponse{Error: "invalid_payload"})
		return
	}
	claims, err := h.verifier.Verify(req.Token)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, utils.ErrTokenExpired):
			reason = "expired"
		case errors.Is(err, utils.ErrTokenWrongKey):
			reason = "wrong_key"
		}
		metrics.TokenRejected.WithLabelValues(reason).Inc()
		h.respondFn(msg, verifyResponse{Error: reason})
		return
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		metrics.TokenRejected.WithLabelValues("malformed").Inc()
		h.respondFn(msg, verifyResponse{Error: "malformed"})
		return
	}
	h.respondFn(msg, verifyResponse{
		OK:       true,
		UserID:   uid,
		Email:    claims.Email,
		Role:     claims.Role,
		BranchID: claims.BranchID,
	})
}

func (h *VerifyHandler) respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	if err := msg.Respond(data); err != nil {
		h.log.Warn().Err(err).Str("subject", msg.Subject).Msg("nats verify reply failed")
	}
}
