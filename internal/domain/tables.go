package domain

var Tables = []interface{}{
	// System
	&Manufacturer{},
	// Registry
	&Batch{},
	&Unit{},
	&ScanRecord{},
	&Report{},
}
