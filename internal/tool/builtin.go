package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// RegisterBuiltins registers the static healthcare tool set: medication
// lookup, appointment scheduling, and symptom checking.
//
// The handlers answer from small built-in datasets; production deployments
// swap them for real backends behind the same names and schemas.
func RegisterBuiltins(r *Registry) error {
	medicationSchema, err := jsonschema.For[medicationInfoArgs](nil)
	if err != nil {
		return fmt.Errorf("schema for medication_info: %w", err)
	}
	if err := r.Register(&Tool{
		Name:        "medication_info",
		Description: "Look up a medication's drug class, common uses, side effects, and warnings by name.",
		Schema:      medicationSchema,
		Execute:     medicationInfoHandler,
	}); err != nil {
		return err
	}

	appointmentSchema, err := jsonschema.For[scheduleAppointmentArgs](nil)
	if err != nil {
		return fmt.Errorf("schema for schedule_appointment: %w", err)
	}
	if err := r.Register(&Tool{
		Name:        "schedule_appointment",
		Description: "Request an appointment with a medical specialty. Returns a confirmation with a booking reference.",
		Schema:      appointmentSchema,
		Execute:     scheduleAppointmentHandler,
	}); err != nil {
		return err
	}

	symptomSchema, err := jsonschema.For[symptomCheckArgs](nil)
	if err != nil {
		return fmt.Errorf("schema for symptom_check: %w", err)
	}
	return r.Register(&Tool{
		Name:        "symptom_check",
		Description: "Triage a list of symptoms into an urgency level with general self-care guidance. Not a diagnosis.",
		Schema:      symptomSchema,
		Execute:     symptomCheckHandler,
	})
}

type medicationInfoArgs struct {
	Name string `json:"name" jsonschema:"medication name to look up"`
}

type medicationInfo struct {
	Name        string   `json:"name"`
	Class       string   `json:"class"`
	Uses        []string `json:"uses"`
	SideEffects []string `json:"side_effects"`
	Warnings    []string `json:"warnings"`
}

var medications = map[string]medicationInfo{
	"ibuprofen": {
		Name:  "ibuprofen",
		Class: "NSAID (nonsteroidal anti-inflammatory drug)",
		Uses:  []string{"pain relief", "fever reduction", "inflammation"},
		SideEffects: []string{
			"stomach upset or pain", "heartburn", "nausea",
			"dizziness", "increased risk of stomach bleeding with prolonged use",
		},
		Warnings: []string{
			"take with food to reduce stomach irritation",
			"avoid with a history of stomach ulcers or kidney disease",
		},
	},
	"acetaminophen": {
		Name:        "acetaminophen",
		Class:       "analgesic and antipyretic",
		Uses:        []string{"pain relief", "fever reduction"},
		SideEffects: []string{"rare at recommended doses", "liver damage at high doses"},
		Warnings:    []string{"do not exceed 4000mg per day", "avoid combining with alcohol"},
	},
	"aspirin": {
		Name:        "aspirin",
		Class:       "NSAID, antiplatelet",
		Uses:        []string{"pain relief", "fever reduction", "cardiovascular protection at low doses"},
		SideEffects: []string{"stomach upset", "increased bleeding risk", "tinnitus at high doses"},
		Warnings:    []string{"not for children with viral illness (Reye's syndrome risk)"},
	},
	"lisinopril": {
		Name:        "lisinopril",
		Class:       "ACE inhibitor",
		Uses:        []string{"high blood pressure", "heart failure"},
		SideEffects: []string{"dry cough", "dizziness", "elevated potassium"},
		Warnings:    []string{"avoid during pregnancy", "monitor kidney function"},
	},
	"metformin": {
		Name:        "metformin",
		Class:       "biguanide antidiabetic",
		Uses:        []string{"type 2 diabetes"},
		SideEffects: []string{"nausea", "diarrhea", "metallic taste"},
		Warnings:    []string{"take with meals", "hold before contrast imaging"},
	},
}

func medicationInfoHandler(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in medicationInfoArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	info, ok := medications[strings.ToLower(strings.TrimSpace(in.Name))]
	if !ok {
		return json.Marshal(map[string]string{
			"error": fmt.Sprintf("no information available for %q", in.Name),
		})
	}
	return json.Marshal(info)
}

type scheduleAppointmentArgs struct {
	PatientName string `json:"patient_name" jsonschema:"name of the patient"`
	Specialty   string `json:"specialty" jsonschema:"medical specialty, e.g. cardiology or general practice"`
	Preferred   string `json:"preferred_time,omitempty" jsonschema:"preferred date or time, free text"`
	Reason      string `json:"reason,omitempty" jsonschema:"short reason for the visit"`
}

func scheduleAppointmentHandler(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in scheduleAppointmentArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	if in.PatientName == "" || in.Specialty == "" {
		return nil, fmt.Errorf("patient_name and specialty are required")
	}
	// Placeholder scheduling backend: confirm the next business day.
	slot := nextBusinessDay(time.Now()).Format("2006-01-02 10:00")
	return json.Marshal(map[string]string{
		"status":     "confirmed",
		"reference":  uuid.NewString(),
		"patient":    in.PatientName,
		"specialty":  in.Specialty,
		"scheduled":  slot,
		"note":       "arrive 15 minutes early with your insurance card",
		"preference": in.Preferred,
	})
}

func nextBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

type symptomCheckArgs struct {
	Symptoms []string `json:"symptoms" jsonschema:"list of symptoms the patient reports"`
}

var urgentSymptoms = map[string]bool{
	"chest pain":            true,
	"difficulty breathing":  true,
	"shortness of breath":   true,
	"severe bleeding":       true,
	"loss of consciousness": true,
	"sudden weakness":       true,
	"slurred speech":        true,
	"severe headache":       true,
}

func symptomCheckHandler(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in symptomCheckArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	if len(in.Symptoms) == 0 {
		return nil, fmt.Errorf("at least one symptom is required")
	}

	urgency := "routine"
	advice := "monitor symptoms and consult a doctor if they persist or worsen"
	for _, s := range in.Symptoms {
		if urgentSymptoms[strings.ToLower(strings.TrimSpace(s))] {
			urgency = "emergency"
			advice = "seek emergency medical care immediately"
			break
		}
	}
	if urgency == "routine" && len(in.Symptoms) >= 3 {
		urgency = "soon"
		advice = "schedule an appointment with a doctor within the next few days"
	}

	return json.Marshal(map[string]any{
		"urgency":    urgency,
		"advice":     advice,
		"symptoms":   in.Symptoms,
		"disclaimer": "this is general guidance, not a medical diagnosis",
	})
}
