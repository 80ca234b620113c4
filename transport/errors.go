package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-quickbooks/core"
)

// Fault is the error envelope QuickBooks returns on failed API calls.
type Fault struct {
	Type   string        `json:"type"`
	Errors []FaultDetail `json:"Error"`
}

type FaultDetail struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element,omitempty"`
}

// ParseFault extracts the fault from a response body. Both the wrapped
// {"Fault": {...}} form and the bare form are accepted.
func ParseFault(body []byte) (Fault, bool) {
	if len(body) == 0 {
		return Fault{}, false
	}
	var wrapped struct {
		Fault *Fault `json:"Fault"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Fault != nil && len(wrapped.Fault.Errors) > 0 {
		return *wrapped.Fault, true
	}
	var bare Fault
	if err := json.Unmarshal(body, &bare); err == nil && len(bare.Errors) > 0 {
		return bare, true
	}
	return Fault{}, false
}

func statusError(method string, path string, response Response) error {
	metadata := map[string]any{
		"method":      method,
		"path":        path,
		"status_code": response.StatusCode,
	}
	if tid := strings.TrimSpace(fmt.Sprint(response.Metadata["intuit_tid"])); tid != "" {
		metadata["intuit_tid"] = tid
	}
	message := fmt.Sprintf("quickbooks api returned status %d", response.StatusCode)
	if fault, ok := ParseFault(response.Body); ok {
		first := fault.Errors[0]
		metadata["fault_type"] = fault.Type
		metadata["fault_code"] = first.Code
		if strings.TrimSpace(first.Message) != "" {
			message = "quickbooks api: " + strings.TrimSpace(first.Message)
		}
		if strings.TrimSpace(first.Detail) != "" {
			metadata["fault_detail"] = strings.TrimSpace(first.Detail)
		}
	}
	if response.StatusCode == http.StatusUnauthorized {
		return core.NewProviderUnauthorizedError(message, metadata)
	}
	return core.NewProviderRequestError(response.StatusCode, message, metadata)
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorProviderRequestFailed
	default:
		return core.ErrorInternal
	}
}
