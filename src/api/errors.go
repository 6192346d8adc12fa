package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/oracle"
	"github.com/stake-plus/postoracle/src/wallet"
	"github.com/stake-plus/postoracle/src/workflow"
)

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		reverted *ledger.RevertedError
		network  *ledger.NetworkError
		rejected *oracle.RejectedError
	)
	switch {
	case errors.Is(err, workflow.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrUserRejected), errors.Is(err, ledger.ErrTransactionRejected):
		return http.StatusForbidden
	case errors.As(err, &reverted):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rejected), errors.As(err, &network):
		return http.StatusBadGateway
	default:
		// includes ErrDomainEventMissing, ErrDuplicateEvent and configuration errors
		return http.StatusInternalServerError
	}
}

// abortWith writes err verbatim. A NotifyError also carries the on-chain identifiers.
func abortWith(c *gin.Context, err error) {
	body := gin.H{"err": err.Error()}
	var nerr *workflow.NotifyError
	if errors.As(err, &nerr) {
		body["postId"] = nerr.PostID.String()
		body["txHash"] = nerr.TxHash.Hex()
		body["correlationId"] = nerr.CorrelationID
	}
	var rejected *oracle.RejectedError
	if errors.As(err, &rejected) && rejected.StatusCode != 0 {
		body["oracleStatus"] = rejected.StatusCode
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
