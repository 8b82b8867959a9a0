package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the administration API and the token surface onto one
// chi router.
func NewRouter(admin *AdminHandler, tokens *TokenHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/ministries", admin.CreateMinistry)
		r.Get("/ministries", admin.GetAllMinistries)

		r.Post("/users", admin.CreateUser)

		r.Post("/servers", admin.CreateServer)
		r.Get("/servers", admin.GetAllServers)
		r.Post("/servers/{id}/token", admin.RegenerateServerToken)

		r.Post("/events", admin.CreateEvent)
		r.Get("/events", admin.GetAllEvents)
		r.Get("/events/{id}", admin.GetEvent)
		r.Post("/events/{id}/cancel", admin.CancelEvent)
		r.Post("/events/{id}/schedules", admin.CreateSchedule)
		r.Get("/events/{id}/schedules", admin.GetEventSchedules)

		r.Post("/schedules", admin.CreateSchedule)

		r.Get("/notifications", admin.GetAllNotifications)
		r.Get("/notifications/{id}", admin.GetNotification)
		r.Post("/notifications/{id}/reminder", admin.CreateReminder)
		r.Post("/notifications/{id}/delivered", admin.MarkDelivered)
		r.Post("/notifications/send", admin.SendNow)

		r.Get("/health", admin.Health)
		r.Get("/metrics", admin.Metrics)
	})

	r.Route("/n/{token}", func(r chi.Router) {
		r.Get("/", tokens.View)
		r.Post("/response", tokens.Respond)
		r.Get("/calendar.ics", tokens.CalendarICS)
		r.Get("/calendar/google", tokens.CalendarGoogle)
		r.Get("/calendar/outlook", tokens.CalendarOutlook)
	})

	return r
}
