// Package httpapi mounts every service handler on one chi router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libraengage/internal/attendance"
	"libraengage/internal/auth"
	"libraengage/internal/catalog"
	"libraengage/internal/circulation"
	"libraengage/internal/consistency"
	"libraengage/internal/dashboard"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/httpx"
	"libraengage/internal/logging"
	"libraengage/internal/membership"
	"libraengage/internal/ranking"
	"libraengage/internal/review"
)

// Services are the handlers' backends.
type Services struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Attendance  attendance.Service
	Engagement  engagement.Service
	Review      review.Service
	Ranking     ranking.Service
	Dashboard   dashboard.Service
	Auditor     *consistency.Auditor
}

// Ping reports whether the backing store is reachable. Nil means always healthy.
type Ping func(ctx context.Context) error

var (
	anyone  = auth.RequireRole(domain.RolePatron, domain.RoleStaff, domain.RoleKiosk)
	staff   = auth.RequireRole(domain.RoleStaff)
	desk    = auth.RequireRole(domain.RoleStaff, domain.RoleKiosk)
	members = auth.RequireRole(domain.RolePatron, domain.RoleStaff)
	self    = auth.RequireSelf("barcode")
)

func NewRouter(svc Services, authn *auth.Authenticator, ping Ping) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.NotFound(httpx.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	items := catalog.NewHandler(svc.Catalog)
	patrons := membership.NewHandler(svc.Membership)
	circ := circulation.NewHandler(svc.Circulation)
	classes := attendance.NewHandler(svc.Attendance)
	ledger := engagement.NewHandler(svc.Engagement)
	summaries := review.NewHandler(svc.Review)
	board := ranking.NewHandler(svc.Ranking)
	dash := dashboard.NewHandler(svc.Dashboard)
	audit := consistency.NewHandler(svc.Auditor)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Route("/circulation", func(r chi.Router) {
			r.With(anyone).Post("/checkout", circ.HandleCheckout)
			r.With(desk).Post("/checkin", circ.HandleCheckIn)
			r.With(members).Post("/renew", circ.HandleRenew)
			r.With(staff).Get("/overdue", circ.HandleListOverdue)
			r.With(staff).Get("/items/{barcode}/history", circ.HandleGetItemHistory)
		})

		r.Route("/items", func(r chi.Router) {
			r.With(staff).Post("/", items.HandleAddItem)
			r.With(anyone).Get("/", items.HandleListItems)
			r.With(anyone).Get("/{barcode}", items.HandleGetItem)
		})

		r.Route("/patrons", func(r chi.Router) {
			r.With(staff).Post("/", patrons.HandleRegisterPatron)
			r.With(anyone, self).Get("/{barcode}", patrons.HandleGetPatron)
			r.With(staff).Put("/{barcode}/photo", patrons.HandleSetPhoto)
			r.With(staff).Post("/{barcode}/suspend", patrons.HandleSuspend)
		})

		r.With(desk).Post("/attendance", classes.HandleMarkAttendance)
		r.With(anyone, self).Get("/attendance/{barcode}", classes.HandleListAttendance)

		r.With(staff).Post("/engagement/activity", ledger.HandleRecordActivity)
		r.With(anyone, self).Get("/engagement/{barcode}/{year}/{month}", ledger.HandleGetMonthlyActivity)

		r.Route("/summaries", func(r chi.Router) {
			r.With(members).Post("/", summaries.HandleSubmit)
			r.With(staff).Post("/staff", summaries.HandleStaffSubmit)
			r.With(members).Get("/", summaries.HandleList)
			r.With(members).Get("/{id}", summaries.HandleGet)
			r.With(staff).Post("/{id}/review", summaries.HandleReview)
		})

		r.With(anyone).Get("/leaderboard/{year}/{month}", board.HandleLeaderboard)
		r.With(staff).Post("/leaderboard/{year}/{month}/recompute", board.HandleRecompute)

		r.With(staff).Get("/dashboard", dash.HandleDashboard)
		r.With(staff).Get("/admin/audit", audit.HandleAudit)
	})

	return r
}
