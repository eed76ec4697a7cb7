// Package model defines the typed entities one CAD export document fans out
// into. The shapes mirror the relational schema one-to-one; the mapper fills
// them and the store persists them as a unit.
package model

// Opt is an optional string. Absent source elements stay unset so an empty
// value in the export is never confused with a missing one.
type Opt struct {
	Value string
	Set   bool
}

// String returns a set Opt.
func String(v string) Opt { return Opt{Value: v, Set: true} }

// Ptr returns the value for SQL binding: nil when unset.
func (o Opt) Ptr() *string {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

// Or returns the value, or def when unset.
func (o Opt) Or(def string) string {
	if !o.Set {
		return def
	}
	return o.Value
}

// Call is the root entity for one dispatch incident.
type Call struct {
	ExternalID  string
	CallNumber  string
	Source      Opt
	CallerName  Opt
	CallerPhone Opt
	Nature      Opt
	CreatedTime Opt
	ClosedTime  Opt
	Closed      bool
	Canceled    bool
	AlarmLevel  Opt
	EMDCode     Opt
}

// Location is the one-to-one structured address for a call.
type Location struct {
	Address   Opt
	City      Opt
	State     Opt
	Zip       Opt
	Latitude  *float64
	Longitude *float64
}

// AgencyContext is one responding agency's view of the call.
type AgencyContext struct {
	AgencyType Opt
	CallType   Opt
	Priority   Opt
	Status     Opt
	Closed     bool
	Canceled   bool
}

// Unit is a dispatched resource with its own sub-records.
type Unit struct {
	UnitNumber   string
	UnitType     Opt
	DispatchTime Opt
	EnrouteTime  Opt
	ArriveTime   Opt
	ClearTime    Opt
	Personnel    []UnitPersonnel
	Logs         []UnitLogEntry
	Dispositions []UnitDisposition
}

// UnitPersonnel is one crew member on a unit.
type UnitPersonnel struct {
	Name string
	Role Opt
}

// UnitLogEntry is one status change recorded against a unit, in log order.
type UnitLogEntry struct {
	LogTime  Opt
	Status   string
	Location Opt
}

// UnitDisposition is an outcome code recorded against a unit.
type UnitDisposition struct {
	Code        string
	Description Opt
}

// Narrative is a timestamped free-text entry, ordered by entry time.
type Narrative struct {
	EntryTime Opt
	EnteredBy Opt
	Text      string
}

// Person is an involved person attached to the call.
type Person struct {
	Name    string
	Role    Opt
	Age     Opt
	Gender  Opt
	Address Opt
}

// Vehicle is an involved vehicle attached to the call.
type Vehicle struct {
	Plate Opt
	State Opt
	Make  Opt
	Model Opt
	Year  Opt
	Color Opt
}

// Incident is an agency incident-number classification for the call.
type Incident struct {
	AgencyType     Opt
	IncidentNumber string
}

// CallDisposition is a final disposition code for the call.
type CallDisposition struct {
	AgencyType  Opt
	Code        string
	Description Opt
}

// CallDocument is the full aggregate produced from one export file.
// Child slices preserve source document order.
type CallDocument struct {
	Call         Call
	Location     *Location
	Agencies     []AgencyContext
	Units        []Unit
	Narratives   []Narrative
	Persons      []Person
	Vehicles     []Vehicle
	Incidents    []Incident
	Dispositions []CallDisposition
}
