package http

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/httputil"
	"github.com/utafrali/roastery/pkg/middleware"
	"github.com/utafrali/roastery/pkg/validator"
)

// CartIDHeader carries the guest cart id for anonymous shoppers.
const CartIDHeader = "X-Cart-ID"

// maxCartIDLen bounds guest cart ids so they stay sane Redis key parts.
const maxCartIDLen = 64

// ContentTypeJSON rejects request bodies declared as anything other than JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{Error: &httputil.ErrorResponse{
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json",
				}})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// cartOwner resolves whose cart a request addresses: the signed-in user, or
// else the guest cart named by X-Cart-ID.
func cartOwner(r *http.Request) (string, error) {
	if uid := middleware.UserIDFromContext(r.Context()); uid != "" {
		return uid, nil
	}
	return guestCart(r)
}

// guestCart returns the owner key of the guest cart named by X-Cart-ID.
func guestCart(r *http.Request) (string, error) {
	guest := strings.TrimSpace(r.Header.Get(CartIDHeader))
	if guest == "" {
		return "", apperrors.InvalidInput(CartIDHeader + " header is required for guest carts")
	}
	if len(guest) > maxCartIDLen || strings.ContainsAny(guest, ": \t") {
		return "", apperrors.InvalidInput("invalid " + CartIDHeader + " header")
	}
	return "guest:" + guest, nil
}

// decodeJSON decodes and validates a request body. Malformed JSON is an
// invalid input error; failed validation keeps its field messages.
func decodeJSON(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	return apperrors.InvalidInput("invalid request body")
}
