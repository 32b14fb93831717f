package domain

import (
	"errors"
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestValidateQuery_Valid(t *testing.T) {
	cases := []Query{
		{VehicleID: "Hero_Hunk_160R_4V", OdometerKm: 0},
		{VehicleID: "Unknown bike", DisplacementCC: ptr(125), OdometerKm: 12500},
		{VehicleID: "Genesis_KA_150", OdometerKm: 7000, History: ServiceHistory{"aceite_motor": 2000}},
	}
	for _, q := range cases {
		if err := ValidateQuery(q); err != nil {
			t.Errorf("expected valid for %+v, got %v", q, err)
		}
	}
}

func TestValidateQuery_MissingVehicle(t *testing.T) {
	err := ValidateQuery(Query{VehicleID: "   ", OdometerKm: 10})
	if !errors.Is(err, ErrVehicleRequired) {
		t.Fatalf("expected ErrVehicleRequired, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "vehicle_id" {
		t.Fatalf("expected ValidationError on vehicle_id, got %v", err)
	}
}

func TestValidateQuery_BadOdometer(t *testing.T) {
	for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := ValidateQuery(Query{VehicleID: "x", OdometerKm: km})
		if !errors.Is(err, ErrInvalidOdometer) {
			t.Errorf("km=%v: expected ErrInvalidOdometer, got %v", km, err)
		}
	}
}

func TestValidateQuery_BadDisplacement(t *testing.T) {
	err := ValidateQuery(Query{VehicleID: "x", DisplacementCC: ptr(0)})
	if !errors.Is(err, ErrInvalidDisplacement) {
		t.Fatalf("expected ErrInvalidDisplacement, got %v", err)
	}
}

func TestValidateQuery_IgnoresHistory(t *testing.T) {
	q := Query{VehicleID: "x", History: ServiceHistory{"bujia": -5, "": 5}}
	if err := ValidateQuery(q); err != nil {
		t.Fatalf("history must be checked per component, got %v", err)
	}
}

func TestValidateHistoryEntry(t *testing.T) {
	if err := ValidateHistoryEntry("bujia", 0); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateHistoryEntry("bujia", -5); !errors.Is(err, ErrInvalidHistoryEntry) {
		t.Fatalf("expected ErrInvalidHistoryEntry, got %v", err)
	}
	if err := ValidateHistoryEntry(" ", 5); !errors.Is(err, ErrComponentRequired) {
		t.Fatalf("expected ErrComponentRequired, got %v", err)
	}
}

func TestOriginPending(t *testing.T) {
	for o, want := range map[Origin]bool{
		OriginPendingBreakIn:   true,
		OriginPendingMilestone: true,
		OriginHistorical:       false,
		OriginTheoretical:      false,
	} {
		if got := o.Pending(); got != want {
			t.Errorf("%s.Pending() = %v, want %v", o, got, want)
		}
	}
}

func TestValidateReport(t *testing.T) {
	ok := ServiceReport{ProfileID: "Bajaj_Pulsar_NS200", ComponentID: "bujias", Action: "REEMPLAZAR", DoneKm: 12500, Condition: "muy_desgastado"}
	if err := ValidateReport(ok); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := ok
	bad.Action = "POLISH"
	if err := ValidateReport(bad); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	bad = ok
	bad.Condition = "rusty"
	if err := ValidateReport(bad); !errors.Is(err, ErrUnknownCondition) {
		t.Errorf("expected ErrUnknownCondition, got %v", err)
	}

	bad = ok
	bad.ComponentID = ""
	if err := ValidateReport(bad); !errors.Is(err, ErrComponentRequired) {
		t.Errorf("expected ErrComponentRequired, got %v", err)
	}
}

func TestValidateOdometerUpdate(t *testing.T) {
	if err := ValidateOdometerUpdate(OdometerUpdate{ProfileID: "p", OdometerKm: 100}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateOdometerUpdate(OdometerUpdate{OdometerKm: 100}); !errors.Is(err, ErrVehicleRequired) {
		t.Errorf("expected ErrVehicleRequired, got %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	e := NewValidationError("odometer_km", "-1", ErrInvalidOdometer)
	want := `validation: odometer must be a non-negative number: odometer_km (value="-1")`
	if e.Error() != want {
		t.Errorf("got %q", e.Error())
	}
	if !IsClientError(e) {
		t.Error("validation errors are client errors")
	}
	if IsClientError(errors.New("boom")) {
		t.Error("plain errors are not client errors")
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]Action{
		"REEMPLAZAR":   ActionReplace,
		"lubricar":     ActionLubricate,
		" LIMPIAR ":    ActionClean,
		"INSPECCIONAR": ActionInspect,
		"INSPECT":      ActionInspect,
	}
	for in, want := range cases {
		got, ok := ParseAction(in)
		if !ok || got != want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseAction("ACTUALIZACION_KM"); ok {
		t.Error("odometer marker is not a maintenance action")
	}
}

func TestParseWearLabel(t *testing.T) {
	cases := map[string]WearLabel{
		"fallo_critico":    WearCriticalFailure,
		"muy_desgastado":   WearHeavilyWorn,
		"desgaste_normal":  WearNormal,
		"como_nuevo":       WearLikeNew,
		"critical_failure": WearCriticalFailure,
	}
	for in, want := range cases {
		got, ok := ParseWearLabel(in)
		if !ok || got != want {
			t.Errorf("ParseWearLabel(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseWearLabel("UNAVAILABLE"); ok {
		t.Error("UNAVAILABLE is not a classifier label")
	}
}

func TestIntegrityError(t *testing.T) {
	err := &IntegrityError{ProfileID: "p", ComponentID: "c", Reason: "non-positive km"}
	if !errors.Is(err, ErrCatalogIntegrity) {
		t.Fatal("IntegrityError should unwrap to ErrCatalogIntegrity")
	}
}
