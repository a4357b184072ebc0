// Package schema validates the fields of an operation payload.
//
// A Schema maps field names to types. Types check the Go value found in the
// payload, which is usually a string typed by the user or decoded from JSON:
//
//	s := schema.Schema{
//	    "bank_code":     schema.Digits(3, 3),
//	    "serial_number": schema.Digits(1, 12),
//	}
//	if err := schema.Validate(s, payload); err != nil {
//	    // err is an *AggregateError listing every failing field
//	}
//
// Schemas serialize as a map of field names to type names, so a catalog can
// publish them ({"bank_code": "digits(3)"}) and clients can parse them back.
package schema
