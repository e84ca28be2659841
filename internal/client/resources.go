package client

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// Backend resource names.
const (
	ResourceClients            = "clients"
	ResourceSamples            = "samples"
	ResourceTestMethods        = "test-methods"
	ResourceProficiencyTests   = "proficiency-tests"
	ResourceCalibrationRecords = "calibration-records"
	ResourcePQRs               = "pqrs"
	ResourceWelderCertificates = "welder-certificates"
	ResourceTestReports        = "test-reports"
)

// Resources lists every resource the backend exposes to this service.
var Resources = []string{
	ResourceClients,
	ResourceSamples,
	ResourceTestMethods,
	ResourceProficiencyTests,
	ResourceCalibrationRecords,
	ResourcePQRs,
	ResourceWelderCertificates,
	ResourceTestReports,
}

// KnownResource reports whether name is one of Resources.
func KnownResource(name string) bool {
	for _, r := range Resources {
		if r == name {
			return true
		}
	}
	return false
}

// ID accepts numeric or string identifiers from the backend.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*id = ""
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

// Record is an untyped backend record.
type Record map[string]any

// ID returns the record's identifier as a string.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	return cast.ToString(r["id"])
}

type LabClient struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
}

type Sample struct {
	ID           ID     `json:"id"`
	SampleID     string `json:"sample_id"`
	Client       ID     `json:"client"`
	Description  string `json:"description,omitempty"`
	ReceivedDate string `json:"received_date,omitempty"`
	Status       string `json:"status,omitempty"`
}

type TestMethod struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Standard string `json:"standard,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

type ProficiencyTest struct {
	ID         ID     `json:"id"`
	Scheme     string `json:"scheme"`
	Round      string `json:"round,omitempty"`
	TestMethod ID     `json:"test_method,omitempty"`
	Result     string `json:"result,omitempty"`
	ZScore     string `json:"z_score,omitempty"`
}

// Services bundles the typed services of every resource.
type Services struct {
	Clients            *Service[LabClient]
	Samples            *Service[Sample]
	TestMethods        *Service[TestMethod]
	ProficiencyTests   *Service[ProficiencyTest]
	CalibrationRecords *Service[Record]
	PQRs               *Service[Record]
	WelderCertificates *Service[Record]
	TestReports        *Service[Record]

	c *Client
}

func NewServices(c *Client) *Services {
	return &Services{
		Clients:            NewService[LabClient](c, ResourceClients),
		Samples:            NewService[Sample](c, ResourceSamples),
		TestMethods:        NewService[TestMethod](c, ResourceTestMethods),
		ProficiencyTests:   NewService[ProficiencyTest](c, ResourceProficiencyTests),
		CalibrationRecords: NewService[Record](c, ResourceCalibrationRecords),
		PQRs:               NewService[Record](c, ResourcePQRs),
		WelderCertificates: NewService[Record](c, ResourceWelderCertificates),
		TestReports:        NewService[Record](c, ResourceTestReports),
		c:                  c,
	}
}

// Records returns an untyped service for any known resource.
func (s *Services) Records(resource string) (*Service[Record], bool) {
	if !KnownResource(resource) {
		return nil, false
	}
	return NewService[Record](s.c, resource), true
}

// Client returns the underlying client.
func (s *Services) Client() *Client {
	return s.c
}
