package audit

// Event constructors for the operations the CA audits. The CA writes these
// through its configured Writer; a failed write fails the operation.

// CACreated records successful CA initialization.
func CACreated(name, algorithm string) *Event {
	return NewEvent(EventCACreated, ResultSuccess).
		WithObject(Object{Type: "ca", Subject: name}).
		WithContext(Context{Algorithm: algorithm})
}

// CALoaded records a CA being loaded from existing key material.
func CALoaded(name string) *Event {
	return NewEvent(EventCALoaded, ResultSuccess).
		WithObject(Object{Type: "ca", Subject: name})
}

// KeyAccessed records access to the CA signing key.
func KeyAccessed(name, reason string) *Event {
	return NewEvent(EventKeyAccessed, ResultSuccess).
		WithObject(Object{Type: "key", Subject: name}).
		WithContext(Context{Reason: reason})
}

// CertIssued records a certificate batch issuance.
func CertIssued(serial, subject, algorithm string, count int) *Event {
	return NewEvent(EventCertIssued, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: serial, Subject: subject}).
		WithContext(Context{Algorithm: algorithm, Count: count})
}

// CertRevoked records a certificate revocation.
func CertRevoked(serial, subject, reason string) *Event {
	return NewEvent(EventCertRevoked, ResultSuccess).
		WithObject(Object{Type: "certificate", Serial: serial, Subject: subject}).
		WithContext(Context{Reason: reason})
}

// CRLGenerated records generation of a signed CRL.
func CRLGenerated(revokedCount int) *Event {
	return NewEvent(EventCRLGenerated, ResultSuccess).
		WithObject(Object{Type: "crl"}).
		WithContext(Context{Count: revokedCount})
}
