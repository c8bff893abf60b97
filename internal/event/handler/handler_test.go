package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"registrar/internal/event/handler"
	"registrar/internal/event/idempotency"
	"registrar/internal/event/indexer"
	"registrar/internal/event/models"
	"registrar/internal/event/service"
	"registrar/internal/event/store"
	"registrar/internal/event/validation"
	"registrar/internal/platform/middleware"
	id "registrar/pkg/domain"
	"registrar/pkg/testutil"
)

const signingKey = "test-signing-key"

var allScopes = []string{
	service.ScopeCreate,
	service.ScopeRead,
	service.ScopeDeclare,
	service.ScopeValidate,
	service.ScopeRegister,
	service.ScopeReject,
	service.ScopeArchive,
	service.ScopeNotifyIncomplete,
	service.ScopePrintCertificate,
	service.ScopeAssign,
	service.ScopeCorrect,
}

type HandlerSuite struct {
	suite.Suite
	router chi.Router

	registrar id.UserID
	clerk     id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(
		store.NewInMemory(),
		idempotency.NewInMemory(),
		indexer.Noop{},
		[]*validation.Form{validation.BirthForm()},
		service.WithLogger(logger),
	)

	h := handler.New(svc, logger, nil, middleware.NewJWTValidator(signingKey))
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.registrar = id.UserID(uuid.New())
	s.clerk = id.UserID(uuid.New())
}

func (s *HandlerSuite) token(user id.UserID, scopes []string) string {
	claims := middleware.Claims{
		Scopes:   scopes,
		Location: "office-001",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(req *http.Request, user id.UserID, scopes ...string) *httptest.ResponseRecorder {
	if len(scopes) == 0 {
		scopes = allScopes
	}
	req.Header.Set("Authorization", "Bearer "+s.token(user, scopes))
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) post(user id.UserID, path string, body any) *httptest.ResponseRecorder {
	return s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, body), user)
}

// createEvent creates a birth event and returns its id as it appears in URLs.
func (s *HandlerSuite) createEvent(user id.UserID) string {
	rr := s.post(user, "/events", map[string]string{
		"type":          "birth",
		"transactionId": uuid.NewString(),
	})
	s.Require().Equal(http.StatusCreated, rr.Code)

	doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
	s.Require().False(doc.ID.IsNil())
	return doc.ID.String()
}

func fullDeclaration() map[string]any {
	return map[string]any{
		"applicant.firstname": "Ada",
		"applicant.surname":   "Lovelace",
		"applicant.dob":       "1990-01-02",
		"informant.self":      true,
	}
}

func (s *HandlerSuite) declareBody() map[string]any {
	return map[string]any{
		"transactionId": uuid.NewString(),
		"declaration":   fullDeclaration(),
	}
}

func (s *HandlerSuite) TestCreate() {
	s.Run("returns the new document", func() {
		rr := s.post(s.registrar, "/events", map[string]string{
			"type":          "birth",
			"transactionId": "txn-create-1",
		})

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
		s.Equal(models.StatusCreated, doc.Status())
		s.Len(doc.Actions, 1)
	})

	s.Run("unknown event type", func() {
		rr := s.post(s.registrar, "/events", map[string]string{
			"type":          "marriage",
			"transactionId": "txn-create-2",
		})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "BAD_REQUEST")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/events", "{not json")
		rr := s.do(req, s.registrar)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "BAD_REQUEST")
	})
}

func (s *HandlerSuite) TestAuth() {
	s.Run("missing authorization header", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events", map[string]string{"type": "birth"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	s.Run("garbage token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events", map[string]string{"type": "birth"})
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	s.Run("expired token", func() {
		claims := middleware.Claims{
			Scopes: allScopes,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   s.registrar.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
		s.Require().NoError(err)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events", map[string]string{"type": "birth"})
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	s.Run("missing scope", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/events", map[string]string{
			"type":          "birth",
			"transactionId": "txn-x",
		})
		rr := s.do(req, s.registrar, service.ScopeRead)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "FORBIDDEN")
	})
}

func (s *HandlerSuite) TestActionFlow() {
	eventID := s.createEvent(s.registrar)

	s.Run("declare", func() {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/declare", s.declareBody())
		testutil.AssertStatusOK(s.T(), rr)
		doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
		s.Equal(models.StatusDeclared, doc.Status())
	})

	s.Run("action by a non-holder is forbidden", func() {
		rr := s.post(s.clerk, "/events/"+eventID+"/actions/validate", map[string]any{
			"transactionId": uuid.NewString(),
		})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "FORBIDDEN")
	})

	s.Run("validate then register", func() {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/validate", map[string]any{
			"transactionId": uuid.NewString(),
		})
		testutil.AssertStatusOK(s.T(), rr)

		rr = s.post(s.registrar, "/events/"+eventID+"/actions/register", map[string]any{
			"transactionId": uuid.NewString(),
		})
		testutil.AssertStatusOK(s.T(), rr)
		doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
		s.Equal(models.StatusRegistered, doc.Status())
	})

	s.Run("illegal transition conflicts", func() {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/validate", map[string]any{
			"transactionId": uuid.NewString(),
		})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "CONFLICT")
	})

	s.Run("unknown event", func() {
		rr := s.post(s.registrar, "/events/"+uuid.NewString()+"/actions/declare", s.declareBody())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "NOT_FOUND")
	})

	s.Run("malformed event id in path", func() {
		rr := s.post(s.registrar, "/events/not-a-uuid/actions/declare", s.declareBody())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "INVALID_INPUT")
	})
}

func (s *HandlerSuite) TestValidationFailure() {
	eventID := s.createEvent(s.registrar)

	rr := s.post(s.registrar, "/events/"+eventID+"/actions/declare", map[string]any{
		"transactionId": uuid.NewString(),
		"declaration": map[string]any{
			"applicant.firstname": "Ada",
			"applicant.dob":       "2040-01-01",
			"informant.self":      true,
		},
	})

	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	envelope := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("VALIDATION", envelope.Error.Code)

	fields := make(map[string]string, len(envelope.Error.Fields))
	for _, f := range envelope.Error.Fields {
		fields[f.Field] = f.Message
	}
	s.Equal("Date must not be in the future", fields["applicant.dob"])
	s.Contains(fields, "applicant.surname")
}

func (s *HandlerSuite) TestIdempotentReplay() {
	eventID := s.createEvent(s.registrar)
	body := s.declareBody()

	first := s.post(s.registrar, "/events/"+eventID+"/actions/declare", body)
	testutil.AssertStatusOK(s.T(), first)

	second := s.post(s.registrar, "/events/"+eventID+"/actions/declare", body)
	testutil.AssertStatusOK(s.T(), second)

	s.Equal(first.Body.Bytes(), second.Body.Bytes(), "replay must reach the wire byte-for-byte")
}

func (s *HandlerSuite) TestGet() {
	eventID := s.createEvent(s.registrar)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/events/"+eventID)
	rr := s.do(req, s.clerk)

	testutil.AssertStatusOK(s.T(), rr)
	doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
	for _, a := range doc.Actions {
		s.NotEqual(models.ActionRead, a.Type)
	}

	s.Run("includeReads exposes the access log", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/events/"+eventID+"?includeReads=true")
		rr := s.do(req, s.clerk)

		testutil.AssertStatusOK(s.T(), rr)
		doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)

		reads := 0
		for _, a := range doc.Actions {
			if a.Type == models.ActionRead {
				reads++
			}
		}
		s.Equal(2, reads)
	})
}

func (s *HandlerSuite) TestCorrection() {
	eventID := s.createEvent(s.registrar)
	for _, step := range []struct {
		path string
		body map[string]any
	}{
		{"declare", s.declareBody()},
		{"validate", map[string]any{"transactionId": uuid.NewString()}},
		{"register", map[string]any{"transactionId": uuid.NewString()}},
	} {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/"+step.path, step.body)
		s.Require().Equal(http.StatusOK, rr.Code)
	}

	rr := s.post(s.registrar, "/events/"+eventID+"/actions/correction/request", map[string]any{
		"transactionId":  uuid.NewString(),
		"declaration":    map[string]any{"applicant.surname": "Byron"},
		"keepAssignment": true,
	})
	testutil.AssertStatusOK(s.T(), rr)

	doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
	request := doc.Actions[len(doc.Actions)-1]
	s.Require().Equal(models.ActionRequestCorrection, request.Type)

	s.Run("malformed request id", func() {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/correction/approve", map[string]any{
			"transactionId": uuid.NewString(),
			"requestId":     "not-a-uuid",
		})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "INVALID_INPUT")
	})

	s.Run("approve applies the delta", func() {
		rr := s.post(s.registrar, "/events/"+eventID+"/actions/correction/approve", map[string]any{
			"transactionId": uuid.NewString(),
			"requestId":     request.ID.String(),
		})
		testutil.AssertStatusOK(s.T(), rr)

		doc := testutil.UnmarshalResponse[models.EventDocument](s.T(), rr)
		s.Equal("Byron", doc.Declaration()["applicant.surname"])

		tail := doc.Actions[len(doc.Actions)-1]
		s.Equal(models.ActionUnassign, tail.Type)
		s.Equal(models.OriginSystem, tail.Origin)
	})
}
