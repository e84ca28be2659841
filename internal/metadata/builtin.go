package metadata

import "lims-forms/internal/section"

// Built-in form kinds.
const (
	FormPQR               = "pqr"
	FormWelderCertificate = "welder_certificate"
	FormTestReport        = "test_report"
	FormCalibration       = "calibration_record"
)

// Builtin returns fresh copies of the form definitions shipped with the
// service.
func Builtin() []*FormDefinition {
	return []*FormDefinition{
		pqrForm(),
		welderCertificateForm(),
		testReportForm(),
		calibrationForm(),
	}
}

func pqrForm() *FormDefinition {
	return &FormDefinition{
		Name:     FormPQR,
		Title:    "Procedure Qualification Record",
		Resource: "pqrs",
		Flags:    []string{FlagASMEEquivalent},
		Fields: []Field{
			{Name: "pqr_number", Label: "PQR No.", Type: "string", Required: true},
			{Name: "wps_number", Label: "Supporting WPS No.", Type: "string"},
			{Name: "company", Label: "Company Name", Type: "string", Required: true},
			{Name: "date_qualified", Label: "Date", Type: "date"},
			{Name: "welding_process", Label: "Welding Process(es)", Type: "string", Enum: []string{"SMAW", "GTAW", "GMAW", "FCAW", "SAW"}},
			{Name: "welding_type", Label: "Types", Type: "string", Enum: []string{"Manual", "Semi-Automatic", "Machine", "Automatic"}},
			{Name: "code_reference", Label: "Code Reference", Type: "string"},
			{Name: "certification_reference", Label: "Certification Reference", Type: "string"},
			{Name: "qualified_by", Label: "Welding Engineer", Type: "string"},
			{Name: "approved_by", Label: "Approved By", Type: "string"},
			{Name: "welder_name", Label: "Welder Name", Type: "string"},
			{Name: "welder_id", Label: "Welder ID", Type: "string"},
		},
		Sections: []*SectionTemplate{
			paramSection("joints", "Joints (QW-402)", "jt", []string{
				"Joint Design", "Backing", "Backing Material", "Groove Angle", "Root Opening", "Root Face",
			}),
			paramSection("base_metals", "Base Metals (QW-403)", "bm", []string{
				"Material Spec.", "Type or Grade", "UNS Number", "P-No.", "Group No.",
				"to P-No.", "to Group No.", "Thickness of Test Coupon", "Diameter of Test Coupon", "Other",
			}, ConditionalColumn{
				Flag:   FlagASMEEquivalent,
				After:  "value",
				Column: section.Column{ID: "bmAsme", Header: "ASME Equivalent", AccessorKey: "asme", Type: section.ColumnInput},
			}),
			paramSection("filler_metals", "Filler Metals (QW-404)", "fm", []string{
				"SFA Specification", "AWS Classification", "F-No.", "A-No.", "Size of Filler Metal",
				"Filler Metal Product Form", "Supplemental Filler Metal", "Electrode Flux Classification",
				"Flux Trade Name", "Weld Metal Thickness",
			}, ConditionalColumn{
				Flag:   FlagASMEEquivalent,
				After:  "value",
				Column: section.Column{ID: "fmAsme", Header: "ASME Equivalent", AccessorKey: "asme", Type: section.ColumnInput},
			}),
			paramSection("positions", "Position (QW-405)", "ps", []string{
				"Position of Groove", "Weld Progression", "Other",
			}),
			paramSection("preheat", "Preheat (QW-406)", "ph", []string{
				"Preheat Temperature", "Interpass Temperature", "Other",
			}),
			paramSection("pwht", "Postweld Heat Treatment (QW-407)", "pw", []string{
				"Temperature", "Time", "Heating Rate", "Cooling Rate", "Other",
			}),
			labelledSection("gas", "Gas (QW-408)", "gs", section.Fixed, []section.Column{
				{ID: "gsLabel", Header: "Gas", AccessorKey: "label", Type: section.ColumnLabel},
				input("gsMixture", "Percent Composition", "mixture"),
				input("gsFlow", "Flow Rate", "flow_rate"),
			}, []string{"Shielding", "Trailing", "Backing"}),
			paramSection("electrical", "Electrical Characteristics (QW-409)", "ec", []string{
				"Current", "Polarity", "Amperes", "Volts", "Tungsten Electrode Size",
				"Mode of Metal Transfer", "Heat Input",
			}),
			lineItemSection("welding_parameters", "Welding Parameters", "wp", []section.Column{
				input("wpPass", "Pass", "pass"),
				input("wpProcess", "Process", "process"),
				input("wpFiller", "Filler Size (mm)", "filler_size"),
				choice("wpPolarity", "Current / Polarity", "polarity", "DCEP", "DCEN", "AC"),
				number("wpAmps", "Amps", "amps"),
				number("wpVolts", "Volts", "volts"),
				number("wpSpeed", "Travel Speed (mm/min)", "travel_speed"),
				number("wpHeat", "Heat Input (kJ/mm)", "heat_input"),
			}, 1),
			lineItemSection("tensile_test", "Tensile Test (QW-150)", "tt", []section.Column{
				input("ttSpecimen", "Specimen No.", "specimen"),
				number("ttWidth", "Width (mm)", "width"),
				number("ttThickness", "Thickness (mm)", "thickness"),
				number("ttArea", "Area (mm²)", "area"),
				number("ttLoad", "Ultimate Total Load (kN)", "load"),
				number("ttStress", "Ultimate Unit Stress (MPa)", "stress"),
				input("ttFailure", "Type of Failure & Location", "failure"),
			}, 2),
			lineItemSection("guided_bend_test", "Guided-Bend Tests (QW-160)", "gb", []section.Column{
				input("gbType", "Type and Figure No.", "type"),
				choice("gbResult", "Result", "result", "Acceptable", "Not Acceptable"),
			}, 4),
			lineItemSection("toughness_test", "Toughness Tests (QW-170)", "tg", []section.Column{
				input("tgSpecimen", "Specimen No.", "specimen"),
				input("tgNotch", "Notch Location", "notch"),
				input("tgSize", "Specimen Size", "size"),
				number("tgTemp", "Test Temperature (°C)", "temperature"),
				number("tgImpact", "Impact Values (J)", "impact"),
				number("tgLateral", "Lateral Expansion (mm)", "lateral"),
			}, 3),
			paramSection("other_tests", "Other Tests", "ot", []string{
				"Type of Test", "Deposit Analysis", "Other",
			}),
		},
		Rules: []*Rule{
			{
				Name:       "base_metal_spec",
				Field:      "base_metals",
				Expression: `cell("base_metals", "bm1", "value") == ""`,
				Message:    "Base metal specification is required",
			},
			{
				Name:       "asme_equivalent_material",
				Field:      "base_metals",
				Expression: `flags.asme_equivalent && cell("base_metals", "bm1", "asme") == ""`,
				Message:    "ASME equivalent material is required when ASME equivalence is claimed",
			},
			{
				Name:       "tensile_specimens",
				Field:      "tensile_test",
				Expression: `all(rows("tensile_test"), {#.specimen == ""})`,
				Message:    "At least one tensile specimen must be recorded",
			},
		},
	}
}

func welderCertificateForm() *FormDefinition {
	return &FormDefinition{
		Name:     FormWelderCertificate,
		Title:    "Welder Performance Qualification",
		Resource: "welder-certificates",
		Fields: []Field{
			{Name: "certificate_number", Label: "Certificate No.", Type: "string", Required: true},
			{Name: "welder_name", Label: "Welder Name", Type: "string", Required: true},
			{Name: "welder_id", Label: "Welder ID", Type: "string", Required: true},
			{Name: "identification", Label: "Iqama / Passport No.", Type: "string"},
			{Name: "company", Label: "Company", Type: "string"},
			{Name: "wps_reference", Label: "WPS Reference", Type: "string"},
			{Name: "date_of_test", Label: "Date of Test", Type: "date"},
			{Name: "qualified_to", Label: "Qualified Until", Type: "date"},
			{Name: "law_name", Label: "Qualification Standard", Type: "string"},
			{Name: "certified_by", Label: "Certified By", Type: "string"},
		},
		Sections: []*SectionTemplate{
			labelledSection("testing_variables", "Testing Variables and Qualification Limits", "tv", section.Fixed, []section.Column{
				{ID: "tvLabel", Header: "Welding Variables", AccessorKey: "label", Type: section.ColumnLabel},
				input("tvActual", "Actual Values", "actual"),
				input("tvRange", "Range Qualified", "range"),
			}, []string{
				"Welding Process", "Type", "Backing", "Base Metal P-No.", "Filler Metal F-No.",
				"Filler Metal Spec (SFA)", "Deposit Thickness", "Position", "Vertical Progression",
				"Current / Polarity", "Pipe Diameter",
			}),
			lineItemSection("test_results", "Test Results", "tr", []section.Column{
				input("trType", "Type of Test", "type"),
				input("trReport", "Report No.", "report_no"),
				choice("trResult", "Result", "result", "Accepted", "Rejected"),
			}, 2),
			paramSection("testing_witnessed", "Testing Conducted By", "tw", []string{
				"Testing Conducted By", "Mechanical Tests By", "Lab Test No.", "Witnessed By",
			}),
		},
		Rules: []*Rule{
			{
				Name:       "qualification_window",
				Field:      "qualified_to",
				Expression: `fields.date_of_test != "" && fields.qualified_to != "" && fields.qualified_to < fields.date_of_test`,
				Message:    "Qualification expiry cannot precede the test date",
			},
			{
				Name:       "rejected_results",
				Field:      "test_results",
				Expression: `any(rows("test_results"), {#.result == "Rejected"})`,
				Message:    "A certificate cannot be issued with rejected test results",
			},
		},
	}
}

func testReportForm() *FormDefinition {
	return &FormDefinition{
		Name:     FormTestReport,
		Title:    "Test Report",
		Resource: "test-reports",
		Fields: []Field{
			{Name: "report_number", Label: "Report No.", Type: "string", Required: true},
			{Name: "request_number", Label: "Request No.", Type: "string"},
			{Name: "client_name", Label: "Client", Type: "string", Required: true},
			{Name: "issue_date", Label: "Issue Date", Type: "date"},
			{Name: "prepared_by", Label: "Prepared By", Type: "string"},
			{Name: "reviewed_by", Label: "Reviewed By", Type: "string"},
			{Name: "approved_by", Label: "Approved By", Type: "string"},
		},
		Sections: []*SectionTemplate{
			paramSection("sample_details", "Sample Details", "sd", []string{
				"Project", "Sample ID", "Material", "Heat No.", "Date Received", "Test Method",
			}),
			lineItemSection("specimens", "Specimens", "sp", []section.Column{
				input("spId", "Specimen ID", "specimen_id"),
				input("spDims", "Dimensions", "dimensions"),
				input("spTest", "Test", "test"),
				number("spValue", "Result", "value"),
				input("spUnit", "Unit", "unit"),
				choice("spStatus", "Status", "status", "Pass", "Fail"),
				{ID: "spRemarks", Header: "Remarks", AccessorKey: "remarks", Type: section.ColumnTextarea},
			}, 1),
			lineItemSection("observations", "Observations", "ob", []section.Column{
				{ID: "obText", Header: "Observation", AccessorKey: "text", Type: section.ColumnTextarea},
			}, 0),
		},
		Rules: []*Rule{
			{
				Name:       "specimen_present",
				Field:      "specimens",
				Expression: `all(rows("specimens"), {#.specimen_id == ""})`,
				Message:    "At least one specimen is required",
				StopOnFail: true,
			},
			{
				Name:       "specimen_status",
				Field:      "specimens",
				Expression: `any(rows("specimens"), {#.specimen_id != "" && #.status == ""})`,
				Message:    "Every specimen needs a pass/fail status",
			},
		},
	}
}

func calibrationForm() *FormDefinition {
	return &FormDefinition{
		Name:     FormCalibration,
		Title:    "Calibration Record",
		Resource: "calibration-records",
		Fields: []Field{
			{Name: "certificate_number", Label: "Certificate No.", Type: "string", Required: true},
			{Name: "calibration_date", Label: "Calibration Date", Type: "date", Required: true},
			{Name: "due_date", Label: "Due Date", Type: "date"},
			{Name: "performed_by", Label: "Performed By", Type: "string"},
			{Name: "standard_reference", Label: "Reference Standard", Type: "string"},
		},
		Sections: []*SectionTemplate{
			paramSection("equipment", "Equipment", "eq", []string{
				"Equipment Name", "Serial No.", "Manufacturer", "Model", "Range", "Resolution", "Location",
			}),
			lineItemSection("readings", "Readings", "rd", []section.Column{
				number("rdNominal", "Nominal", "nominal"),
				number("rdMeasured", "Measured", "measured"),
				number("rdError", "Error", "error"),
				number("rdUncertainty", "Uncertainty", "uncertainty"),
				choice("rdStatus", "Status", "status", "Within Tolerance", "Out of Tolerance"),
			}, 3),
		},
		Rules: []*Rule{
			{
				Name:       "due_after_calibration",
				Field:      "due_date",
				Expression: `fields.due_date != "" && fields.due_date <= fields.calibration_date`,
				Message:    "Due date must be after the calibration date",
			},
		},
	}
}
