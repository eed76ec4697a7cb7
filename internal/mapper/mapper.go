// Package mapper walks a parsed export tree and produces the typed call
// aggregate. All element-presence validation lives here: a well-formed
// document missing a required field is a mapping failure, not a parse
// failure.
package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"cad_ingest/internal/filename"
	"cad_ingest/internal/model"
	"cad_ingest/internal/xmlparse"
)

// MapError names the field that made a document unmappable.
type MapError struct {
	Field  string
	Reason string
}

func (e *MapError) Error() string {
	return fmt.Sprintf("map %s: %s", e.Field, e.Reason)
}

// Map converts the document tree into a call aggregate. The call number in
// the document body must match the one decoded from the filename; a
// mismatch signals a misfiled or corrupted export and fails the mapping.
func Map(root *xmlparse.Node, decoded filename.Decoded) (*model.CallDocument, error) {
	callEl := root.Child("Call")
	if callEl == nil {
		return nil, &MapError{Field: "Call", Reason: "element missing"}
	}

	call, err := mapCall(callEl)
	if err != nil {
		return nil, err
	}
	if call.CallNumber != decoded.CallNumber {
		return nil, &MapError{
			Field:  "Call.CallNumber",
			Reason: fmt.Sprintf("body says %q but filename %s encodes %q", call.CallNumber, decoded.Name, decoded.CallNumber),
		}
	}

	doc := &model.CallDocument{Call: call}

	if locEl := root.Child("Location"); locEl != nil {
		loc, err := mapLocation(locEl)
		if err != nil {
			return nil, err
		}
		doc.Location = loc
	}

	if agencies := root.Child("Agencies"); agencies != nil {
		for i, el := range agencies.ChildrenNamed("Agency") {
			ac, err := mapAgency(el, i)
			if err != nil {
				return nil, err
			}
			doc.Agencies = append(doc.Agencies, ac)
		}
	}

	if units := root.Child("Units"); units != nil {
		for i, el := range units.ChildrenNamed("Unit") {
			u, err := mapUnit(el, i)
			if err != nil {
				return nil, err
			}
			doc.Units = append(doc.Units, u)
		}
	}

	if narratives := root.Child("Narratives"); narratives != nil {
		for i, el := range narratives.ChildrenNamed("Narrative") {
			n, err := mapNarrative(el, i)
			if err != nil {
				return nil, err
			}
			doc.Narratives = append(doc.Narratives, n)
		}
	}

	if persons := root.Child("Persons"); persons != nil {
		for i, el := range persons.ChildrenNamed("Person") {
			p, err := mapPerson(el, i)
			if err != nil {
				return nil, err
			}
			doc.Persons = append(doc.Persons, p)
		}
	}

	if vehicles := root.Child("Vehicles"); vehicles != nil {
		for _, el := range vehicles.ChildrenNamed("Vehicle") {
			doc.Vehicles = append(doc.Vehicles, model.Vehicle{
				Plate: optText(el, "Plate"),
				State: optText(el, "State"),
				Make:  optText(el, "Make"),
				Model: optText(el, "Model"),
				Year:  optText(el, "Year"),
				Color: optText(el, "Color"),
			})
		}
	}

	if incidents := root.Child("Incidents"); incidents != nil {
		for i, el := range incidents.ChildrenNamed("Incident") {
			number, err := reqText(el, fmt.Sprintf("Incidents.Incident[%d].IncidentNumber", i), "IncidentNumber")
			if err != nil {
				return nil, err
			}
			doc.Incidents = append(doc.Incidents, model.Incident{
				AgencyType:     optText(el, "AgencyType"),
				IncidentNumber: number,
			})
		}
	}

	if dispositions := root.Child("CallDispositions"); dispositions != nil {
		for i, el := range dispositions.ChildrenNamed("Disposition") {
			code, err := reqText(el, fmt.Sprintf("CallDispositions.Disposition[%d].Code", i), "Code")
			if err != nil {
				return nil, err
			}
			doc.Dispositions = append(doc.Dispositions, model.CallDisposition{
				AgencyType:  optText(el, "AgencyType"),
				Code:        code,
				Description: optText(el, "Description"),
			})
		}
	}

	return doc, nil
}

func mapCall(el *xmlparse.Node) (model.Call, error) {
	var c model.Call
	var err error
	if c.ExternalID, err = reqText(el, "Call.CallId", "CallId"); err != nil {
		return c, err
	}
	if c.CallNumber, err = reqText(el, "Call.CallNumber", "CallNumber"); err != nil {
		return c, err
	}
	c.Source = optText(el, "Source")
	c.CallerName = optText(el, "CallerName")
	c.CallerPhone = optText(el, "CallerPhone")
	c.Nature = optText(el, "NatureOfCall")
	c.CreatedTime = optText(el, "CreateDateTime")
	c.ClosedTime = optText(el, "ClosedDateTime")
	if c.Closed, err = optBool(el, "Call.ClosedFlag", "ClosedFlag"); err != nil {
		return c, err
	}
	if c.Canceled, err = optBool(el, "Call.CanceledFlag", "CanceledFlag"); err != nil {
		return c, err
	}
	c.AlarmLevel = optText(el, "AlarmLevel")
	c.EMDCode = optText(el, "EmdCode")
	return c, nil
}

func mapLocation(el *xmlparse.Node) (*model.Location, error) {
	loc := &model.Location{
		Address: optText(el, "Address"),
		City:    optText(el, "City"),
		State:   optText(el, "State"),
		Zip:     optText(el, "Zip"),
	}
	var err error
	if loc.Latitude, err = optFloat(el, "Location.Latitude", "Latitude"); err != nil {
		return nil, err
	}
	if loc.Longitude, err = optFloat(el, "Location.Longitude", "Longitude"); err != nil {
		return nil, err
	}
	return loc, nil
}

func mapAgency(el *xmlparse.Node, idx int) (model.AgencyContext, error) {
	ac := model.AgencyContext{
		AgencyType: optText(el, "AgencyType"),
		CallType:   optText(el, "CallType"),
		Priority:   optText(el, "Priority"),
		Status:     optText(el, "Status"),
	}
	var err error
	prefix := fmt.Sprintf("Agencies.Agency[%d]", idx)
	if ac.Closed, err = optBool(el, prefix+".ClosedFlag", "ClosedFlag"); err != nil {
		return ac, err
	}
	if ac.Canceled, err = optBool(el, prefix+".CanceledFlag", "CanceledFlag"); err != nil {
		return ac, err
	}
	return ac, nil
}

func mapUnit(el *xmlparse.Node, idx int) (model.Unit, error) {
	prefix := fmt.Sprintf("Units.Unit[%d]", idx)
	number, err := reqText(el, prefix+".UnitNumber", "UnitNumber")
	if err != nil {
		return model.Unit{}, err
	}
	u := model.Unit{
		UnitNumber:   number,
		UnitType:     optText(el, "UnitType"),
		DispatchTime: optText(el, "DispatchDateTime"),
		EnrouteTime:  optText(el, "EnrouteDateTime"),
		ArriveTime:   optText(el, "ArriveDateTime"),
		ClearTime:    optText(el, "ClearDateTime"),
	}

	if personnel := el.Child("Personnel"); personnel != nil {
		for i, m := range personnel.ChildrenNamed("Member") {
			name, err := reqText(m, fmt.Sprintf("%s.Personnel.Member[%d].Name", prefix, i), "Name")
			if err != nil {
				return u, err
			}
			u.Personnel = append(u.Personnel, model.UnitPersonnel{Name: name, Role: optText(m, "Role")})
		}
	}

	if logs := el.Child("Logs"); logs != nil {
		for i, l := range logs.ChildrenNamed("Log") {
			status, err := reqText(l, fmt.Sprintf("%s.Logs.Log[%d].Status", prefix, i), "Status")
			if err != nil {
				return u, err
			}
			u.Logs = append(u.Logs, model.UnitLogEntry{
				LogTime:  optText(l, "LogDateTime"),
				Status:   status,
				Location: optText(l, "Location"),
			})
		}
	}

	if dispositions := el.Child("Dispositions"); dispositions != nil {
		for i, d := range dispositions.ChildrenNamed("Disposition") {
			code, err := reqText(d, fmt.Sprintf("%s.Dispositions.Disposition[%d].Code", prefix, i), "Code")
			if err != nil {
				return u, err
			}
			u.Dispositions = append(u.Dispositions, model.UnitDisposition{
				Code:        code,
				Description: optText(d, "Description"),
			})
		}
	}

	return u, nil
}

func mapNarrative(el *xmlparse.Node, idx int) (model.Narrative, error) {
	text, err := reqText(el, fmt.Sprintf("Narratives.Narrative[%d].Text", idx), "Text")
	if err != nil {
		return model.Narrative{}, err
	}
	return model.Narrative{
		EntryTime: optText(el, "EntryDateTime"),
		EnteredBy: optText(el, "EnteredBy"),
		Text:      text,
	}, nil
}

func mapPerson(el *xmlparse.Node, idx int) (model.Person, error) {
	name, err := reqText(el, fmt.Sprintf("Persons.Person[%d].Name", idx), "Name")
	if err != nil {
		return model.Person{}, err
	}
	return model.Person{
		Name:    name,
		Role:    optText(el, "Role"),
		Age:     optText(el, "Age"),
		Gender:  optText(el, "Gender"),
		Address: optText(el, "Address"),
	}, nil
}

func optText(el *xmlparse.Node, name string) model.Opt {
	v, ok := el.ChildText(name)
	if !ok {
		return model.Opt{}
	}
	return model.String(v)
}

func reqText(el *xmlparse.Node, field, name string) (string, error) {
	v, ok := el.ChildText(name)
	if !ok {
		return "", &MapError{Field: field, Reason: "element missing"}
	}
	if v == "" {
		return "", &MapError{Field: field, Reason: "element empty"}
	}
	return v, nil
}

func optBool(el *xmlparse.Node, field, name string) (bool, error) {
	v, ok := el.ChildText(name)
	if !ok {
		return false, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	default:
		return false, &MapError{Field: field, Reason: fmt.Sprintf("not a boolean token: %q", v)}
	}
}

func optFloat(el *xmlparse.Node, field, name string) (*float64, error) {
	v, ok := el.ChildText(name)
	if !ok || v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &MapError{Field: field, Reason: fmt.Sprintf("not a coordinate: %q", v)}
	}
	return &f, nil
}
