package claims

// Policy carries the business switches that gate claim and dispute flow.
type Policy struct {
	// LaunchDate is the cutoff before which external sales are not
	// eligible for claiming.
	LaunchDate PeriodDate
	// AllowRedispute controls whether a rejected dispute forecloses the
	// claim to further disputes. The source business rule left this open,
	// so it is an explicit switch rather than an assumption.
	AllowRedispute bool
}
