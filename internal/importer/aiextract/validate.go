package aiextract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError is a structurally unusable service response
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid response: " + strings.Join(e.Problems, "; ")
}

// DecodeResponse parses and validates a service payload. Envelope problems
// (bad JSON, wrong field types, negative counts) fail the whole response.
// Individual records that fail validation are dropped and described in
// RecordErrors so the rest of the import can proceed.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, invalidResponse(&ValidationError{Problems: []string{describeJSONError(err)}})
	}
	if err := ValidateResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateResponse checks an already decoded response in place.
func ValidateResponse(resp *Response) error {
	v := getValidator()

	if err := v.Struct(resp); err != nil {
		return invalidResponse(&ValidationError{Problems: describeValidation(err)})
	}

	events := resp.Events[:0]
	for i, ev := range resp.Events {
		if err := v.Struct(ev); err != nil {
			resp.RecordErrors = append(resp.RecordErrors, recordError("Event", i, err))
			continue
		}
		events = append(events, ev)
	}
	resp.Events = events

	sessions := resp.Sessions[:0]
	for i, s := range resp.Sessions {
		if err := v.Struct(s); err != nil {
			resp.RecordErrors = append(resp.RecordErrors, recordError("Session", i, err))
			continue
		}
		sessions = append(sessions, s)
	}
	resp.Sessions = sessions

	return nil
}

// ValidateRequest rejects requests the service could not act on.
func ValidateRequest(req Request) error {
	if err := getValidator().Struct(req); err != nil {
		return fmt.Errorf("invalid request: %s", strings.Join(describeValidation(err), "; "))
	}
	if req.FileURL == "" && req.URL == "" && strings.TrimSpace(req.MessageText) == "" {
		return errors.New("invalid request: one of fileUrl, url or messageText is required")
	}
	return nil
}

func invalidResponse(err *ValidationError) error {
	return apperrors.New(apperrors.CodeInvalidResponse, "AI parsing failed", err)
}

func recordError(kind string, i int, err error) string {
	return fmt.Sprintf("AI %s #%d skipped: %s", strings.ToLower(kind), i+1, strings.Join(describeValidation(err), "; "))
}

func describeValidation(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		case "gte", "lte":
			problems = append(problems, fmt.Sprintf("%s out of range (%v)", fe.Field(), fe.Value()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return problems
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	}
	return err.Error()
}
