package notify

import (
	"fmt"
	"strings"

	"churchops/internal/models"
)

var dayTranslations = map[string]string{
	"monday":    "Lunes",
	"tuesday":   "Martes",
	"wednesday": "Miércoles",
	"thursday":  "Jueves",
	"friday":    "Viernes",
	"saturday":  "Sábado",
	"sunday":    "Domingo",
}

var eventTypeTranslations = map[models.EventType]string{
	models.EventService:  "Servicio",
	models.EventMeeting:  "Reunión",
	models.EventSpecial:  "Evento Especial",
	models.EventTraining: "Entrenamiento",
	models.EventOutreach: "Alcance",
}

func translateDay(day string) string {
	if t, ok := dayTranslations[strings.ToLower(day)]; ok {
		return t
	}
	return day
}

func translateEventType(t models.EventType) string {
	if s, ok := eventTypeTranslations[t]; ok {
		return s
	}
	return string(t)
}

func assignmentScheduleMessage(srv *models.Server, sch *models.Schedule, ministryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", srv.DisplayName())
	fmt.Fprintf(&b, "Se te ha asignado un nuevo servicio en el ministerio de %s.\n\n", ministryName)
	b.WriteString("Detalles:\n")
	fmt.Fprintf(&b, "• Día: %s\n", translateDay(sch.DayOfWeek))
	fmt.Fprintf(&b, "• Hora: %s - %s\n", sch.StartTime, sch.EndTime)
	fmt.Fprintf(&b, "• Posición: %s\n\n", srv.Position)
	b.WriteString("Por favor confirma tu disponibilidad haciendo clic en el enlace de respuesta.\n\n")
	b.WriteString("¡Gracias por tu servicio!")
	return b.String()
}

func assignmentEventMessage(srv *models.Server, e *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", srv.DisplayName())
	b.WriteString("Se te ha asignado para participar en el siguiente evento:\n\n")
	fmt.Fprintf(&b, "• Evento: %s\n", e.Name)
	fmt.Fprintf(&b, "• Tipo: %s\n", translateEventType(e.Type))
	fmt.Fprintf(&b, "• Inicio: %s\n", e.StartDatetime.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "• Fin: %s\n", e.EndDatetime.Format("02/01/2006 15:04"))
	if e.Location != "" {
		fmt.Fprintf(&b, "• Ubicación: %s\n", e.Location)
	}
	b.WriteString("\n")
	if e.Description != "" {
		fmt.Fprintf(&b, "Descripción: %s\n\n", e.Description)
	}
	b.WriteString("Por favor confirma tu disponibilidad haciendo clic en el enlace de respuesta.\n\n")
	b.WriteString("¡Gracias por tu servicio!")
	return b.String()
}

func reminderMessage(sch *models.Schedule, ministryName string, e *models.Event) string {
	if sch != nil {
		return fmt.Sprintf("Recordatorio: Tienes servicio mañana en %s de %s a %s.",
			ministryName, sch.StartTime, sch.EndTime)
	}
	if e != nil {
		return fmt.Sprintf("Recordatorio: Tienes el evento '%s' el %s a las %s.",
			e.Name, e.StartDatetime.Format("02/01/2006"), e.StartDatetime.Format("15:04"))
	}
	return "Recordatorio: Tienes un servicio programado próximamente."
}

func responseAck(action models.ResponseStatus) string {
	switch action {
	case models.ResponseConfirmed:
		return "¡Gracias por confirmar tu participación!"
	case models.ResponseDeclined:
		return "Tu respuesta ha sido registrada. Buscaremos un reemplazo."
	case models.ResponseMaybe:
		return "Tu respuesta ha sido registrada. Te contactaremos pronto."
	default:
		return "Tu respuesta ha sido registrada."
	}
}
