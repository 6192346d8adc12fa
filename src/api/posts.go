package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/workflow"
)

// Pipeline is what the handlers need from *workflow.Pipeline.
type Pipeline interface {
	Submit(ctx context.Context, req workflow.Request) (*workflow.Submission, error)
	Status(ctx context.Context, postID *big.Int) (ledger.Post, error)
	Watch(postID *big.Int) *poller.Session
	Session(postID *big.Int) *poller.Session
	Cancel(postID *big.Int) bool
}

type postView struct {
	PostID          string `json:"postId"`
	Author          string `json:"author"`
	Username        string `json:"username"`
	Status          string `json:"status"`
	Terminal        bool   `json:"terminal"`
	SimilarityScore uint64 `json:"similarityScore"`
	IPFSCID         string `json:"ipfsCid,omitempty"`
	GatewayURL      string `json:"gatewayUrl,omitempty"`
}

func newPostView(p ledger.Post, gateway string) postView {
	v := postView{
		Author:          p.Author.Hex(),
		Username:        p.Username,
		Status:          p.Status.String(),
		Terminal:        p.Status.IsTerminal(),
		SimilarityScore: p.SimilarityScore,
		IPFSCID:         p.IPFSCID,
		GatewayURL:      p.GatewayURL(gateway),
	}
	if p.ID != nil {
		v.PostID = p.ID.String()
	}
	return v
}

type sessionView struct {
	PostID        string     `json:"postId"`
	CorrelationID string     `json:"correlationId,omitempty"`
	State         string     `json:"state"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"maxAttempts"`
	Interval      string     `json:"interval"`
	Last          *postView  `json:"last,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

func newSessionView(s poller.Snapshot, gateway string) sessionView {
	v := sessionView{
		PostID:        s.PostID.String(),
		CorrelationID: s.CorrelationID,
		State:         s.State.String(),
		Attempts:      s.Attempts,
		MaxAttempts:   s.MaxAttempts,
		Interval:      s.Interval.String(),
		StartedAt:     s.StartedAt,
	}
	if s.Last != nil {
		pv := newPostView(*s.Last, gateway)
		v.Last = &pv
	}
	if s.LastErr != nil {
		v.LastError = s.LastErr.Error()
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt
		v.EndedAt = &t
	}
	return v
}

type Posts struct {
	pipeline Pipeline
	gateway  string
}

func NewPosts(p Pipeline, ipfsGateway string) Posts {
	return Posts{pipeline: p, gateway: ipfsGateway}
}

func (h Posts) Create(c *gin.Context) {
	var req workflow.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	sub, err := h.pipeline.Submit(c.Request.Context(), req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"postId":        sub.PostID.String(),
		"txHash":        sub.TxHash.Hex(),
		"author":        sub.Author.Hex(),
		"correlationId": sub.CorrelationID,
		"fingerprint":   sub.Fingerprint,
	})
}

func (h Posts) Get(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	post, err := h.pipeline.Status(c.Request.Context(), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostView(post, h.gateway))
}

func (h Posts) Session(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	s := h.pipeline.Session(id)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "no active poll session"})
		return
	}
	c.JSON(http.StatusOK, newSessionView(s.Snapshot(), h.gateway))
}

func (h Posts) Watch(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	s := h.pipeline.Watch(id)
	c.JSON(http.StatusAccepted, newSessionView(s.Snapshot(), h.gateway))
}

func (h Posts) Cancel(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	if !h.pipeline.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"err": "no active poll session"})
		return
	}
	c.Status(http.StatusNoContent)
}

const badPostID = "post id must be a non-negative decimal integer"

func postID(c *gin.Context) (*big.Int, bool) {
	id, ok := new(big.Int).SetString(c.Param("id"), 10)
	if !ok || id.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": badPostID})
		return nil, false
	}
	return id, true
}
