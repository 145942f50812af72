package policykit

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP middleware for permission checking.
type Middleware struct {
	service        *Service
	getPrincipalID func(*http.Request) string
	errorHandler   func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := policykit.NewMiddleware(service,
//	    policykit.WithPrincipalExtractor(func(r *http.Request) string {
//	        return r.Context().Value("user_id").(string)
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:        service,
		getPrincipalID: defaultGetPrincipalID,
		errorHandler:   defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithPrincipalExtractor sets a custom function to extract the principal ID
// from the request.
func WithPrincipalExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getPrincipalID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetPrincipalID(r *http.Request) string {
	return GetPrincipalID(r.Context())
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsPermissionDenied(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case IsNotFound(err):
		http.Error(w, "Not Found", http.StatusNotFound)
	case IsInvalidInput(err):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	case IsUnavailable(err):
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// ResourceExtractor extracts the checked resource ID from an HTTP request.
type ResourceExtractor func(*http.Request) (string, error)

// ResourceFromParam creates a ResourceExtractor that reads the resource ID
// from URL parameters. Compatible with chi, gorilla/mux, and standard
// library patterns.
//
// Example:
//
//	// For route /documents/{docID}
//	mw.RequirePermission("documents.read", policykit.ResourceFromParam("docID"))
func ResourceFromParam(paramName string) ResourceExtractor {
	return func(r *http.Request) (string, error) {
		resourceID := r.PathValue(paramName)
		if resourceID == "" {
			// Try context (set by router middleware)
			if v := r.Context().Value(paramName); v != nil {
				if s, ok := v.(string); ok {
					resourceID = s
				}
			}
		}
		if resourceID == "" {
			return "", NewError(ErrInvalidInput, "resource ID not found in request")
		}
		return resourceID, nil
	}
}

// ResourceFromQuery creates a ResourceExtractor that reads the resource ID
// from query parameters.
//
// Example:
//
//	// For route /api/files?document_id=doc_123
//	mw.RequirePermission("documents.read", policykit.ResourceFromQuery("document_id"))
func ResourceFromQuery(queryParam string) ResourceExtractor {
	return func(r *http.Request) (string, error) {
		resourceID := r.URL.Query().Get(queryParam)
		if resourceID == "" {
			return "", NewError(ErrInvalidInput, "resource ID not found in query")
		}
		return resourceID, nil
	}
}

// ResourceFromHeader creates a ResourceExtractor that reads the resource ID
// from a header.
//
// Example:
//
//	// For header X-Project-ID: proj_123
//	mw.RequirePermission("projects.admin", policykit.ResourceFromHeader("X-Project-ID"))
func ResourceFromHeader(headerName string) ResourceExtractor {
	return func(r *http.Request) (string, error) {
		resourceID := r.Header.Get(headerName)
		if resourceID == "" {
			return "", NewError(ErrInvalidInput, "resource ID not found in header")
		}
		return resourceID, nil
	}
}

// StaticResource creates a ResourceExtractor that always returns the same
// resource.
//
// Example:
//
//	mw.RequirePermission("settings.write", policykit.StaticResource("org-1"))
func StaticResource(resourceID string) ResourceExtractor {
	return func(r *http.Request) (string, error) {
		return resourceID, nil
	}
}

// GlobalResource creates a ResourceExtractor for resource-less checks: only
// global assignments apply.
//
// Example:
//
//	mw.RequirePermission("admin.impersonate", policykit.GlobalResource())
func GlobalResource() ResourceExtractor {
	return func(r *http.Request) (string, error) {
		return "", nil
	}
}

// RequirePermission creates middleware that requires the action to be
// granted on the extracted resource.
//
// Example:
//
//	router.With(mw.RequirePermission("documents.write", policykit.ResourceFromParam("docID"))).
//	    Put("/documents/{docID}", updateDocumentHandler)
func (m *Middleware) RequirePermission(action string, extractor ResourceExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				m.errorHandler(w, r, ErrNoActorID)
				return
			}

			resourceID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			d, err := m.service.Check(ctx, principalID, action, resourceID)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !d.Granted {
				m.errorHandler(w, r, NewError(ErrPermissionDenied, d.Reason).
					WithPrincipal(principalID).
					WithAction(action).
					WithResource(resourceID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission creates middleware that requires at least one of the
// actions to be granted on the extracted resource. All actions are decided
// against one snapshot.
//
// Example:
//
//	router.With(mw.RequireAnyPermission([]string{"documents.read", "documents.write"}, extractor)).
//	    Get("/documents/{docID}", readDocumentHandler)
func (m *Middleware) RequireAnyPermission(actions []string, extractor ResourceExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				m.errorHandler(w, r, ErrNoActorID)
				return
			}

			resourceID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			reqs := make([]CheckRequest, len(actions))
			for i, action := range actions {
				reqs[i] = CheckRequest{Action: action, ResourceID: resourceID}
			}
			decisions, err := m.service.CheckMany(ctx, principalID, reqs)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			for _, d := range decisions {
				if d.Granted {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.errorHandler(w, r, NewError(ErrPermissionDenied, "no required permission granted").
				WithPrincipal(principalID).
				WithResource(resourceID))
		})
	}
}

// LoadResolver creates middleware that loads the principal's Resolver into
// context. Use this when the handler makes several decisions itself: all of
// them run against the same snapshot without further ledger reads. Note that
// a Resolver loaded here never short-circuits on break-glass grants; use
// Check for that.
//
// Example:
//
//	router.With(mw.LoadResolver()).Get("/dashboard", dashboardHandler)
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    resolver := policykit.ResolverFromContext(r.Context())
//	    if resolver != nil && resolver.Decide("reports.read", "", nil).Granted {
//	        // Show reports
//	    }
//	}
func (m *Middleware) LoadResolver() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := m.getPrincipalID(r)
			if principalID == "" {
				// No principal, continue without resolver
				next.ServeHTTP(w, r)
				return
			}

			resolver, err := m.service.LoadResolver(ctx, principalID)
			if err != nil {
				// The resolver is an optimization; handlers fall back to
				// Check when it is absent.
				m.service.logger.Warn("resolver load failed",
					zap.String("principal_id", principalID),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithResolver(ctx, resolver)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context for assignment operations.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract IP address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			// Extract Request ID (commonly set by other middleware)
			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			// Set actor ID from principal if available
			principalID := m.getPrincipalID(r)
			if principalID != "" {
				ctx = WithPrincipalID(ctx, principalID)
				ctx = WithActorID(ctx, principalID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
