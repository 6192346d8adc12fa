// Package oracle hands submitted content to the off-chain moderation service.
package oracle

import (
	"context"
	"fmt"
	"html"
	"log"
	"math/big"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/OneOfOne/xxhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/microcosm-cc/bluemonday"

	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/webclient"
)

const maxDiagnostic = 512

// Payload is the JSON body the oracle's store-content endpoint expects.
type Payload struct {
	PostID        string `json:"postId"`
	Content       string `json:"content"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
}

// RejectedError is any non-2xx answer or transport failure. StatusCode is 0 for the latter.
type RejectedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RejectedError) Error() string {
	if e.StatusCode == 0 {
		return "Oracle unreachable: " + e.Body
	}
	return strings.TrimSpace(fmt.Sprintf("Oracle rejected content: %d %s", e.StatusCode, e.Body))
}

func (e *RejectedError) Unwrap() error { return e.Err }

type Notifier struct {
	client    *http.Client
	endpoint  string
	sanitizer *bluemonday.Policy
	logger    *log.Logger
}

// NewNotifier posts to endpoint, the full store-content URL.
func NewNotifier(endpoint string, client *http.Client, logger *log.Logger) *Notifier {
	if client == nil {
		client = webclient.NewDefault(0)
	}
	return &Notifier{
		client:    client,
		endpoint:  endpoint,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logging.OrDiscard(logger),
	}
}

func (n *Notifier) Endpoint() string { return n.endpoint }

// Notify sends one request. Success means the oracle accepted the content for processing.
// It is never retried here: the post id is already consumed on-chain.
func (n *Notifier) Notify(ctx context.Context, postID *big.Int, content, username string, author common.Address) error {
	payload := Payload{
		PostID:        postID.String(),
		Content:       content,
		Username:      username,
		WalletAddress: author.Hex(),
	}

	status, body, err := webclient.PostJSON(ctx, n.client, n.endpoint, payload)
	if err != nil {
		n.logger.Printf("oracle notify post %s failed: %s", payload.PostID, logging.Describe(err))
		return &RejectedError{Body: err.Error(), Err: err}
	}
	if status < 200 || status > 299 {
		msg := n.diagnostic(body)
		n.logger.Printf("oracle rejected post %s: status=%d body=%q", payload.PostID, status, msg)
		return &RejectedError{StatusCode: status, Body: msg}
	}

	n.logger.Printf("oracle accepted post %s (content %s, %d bytes)", payload.PostID, Fingerprint(content), len(content))
	return nil
}

// diagnostic turns an error body into one line of plain text. HTML error pages are stripped.
func (n *Notifier) diagnostic(body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "<") {
		text = html.UnescapeString(n.sanitizer.Sanitize(text))
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxDiagnostic {
		cut := maxDiagnostic - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

// Fingerprint is a short, stable content digest for logs and events. Not a security hash.
func Fingerprint(content string) string {
	return fmt.Sprintf("%016x", xxhash.ChecksumString64(content))
}
