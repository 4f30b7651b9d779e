package gateway

// Resolver identifies the gateway that sent a callback from the shape of
// its fields alone. It holds no state beyond its rule set.
type Resolver struct {
	rules []Registration
}

// NewResolver creates a resolver over the registrations that declare a shape.
func NewResolver(registrations ...Registration) *Resolver {
	r := &Resolver{}
	for _, reg := range registrations {
		if reg.Matches != nil {
			r.rules = append(r.rules, reg)
		}
	}
	return r
}

// Detect returns the code of the single gateway whose shape matches fields.
// A payload matching none or several shapes is ambiguous and yields false.
func (r *Resolver) Detect(fields map[string]string) (string, bool) {
	var found string
	for _, rule := range r.rules {
		if !rule.Matches(fields) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = normalizeCode(rule.Code)
	}
	return found, found != ""
}

// HasFields reports whether every key is present with a non-empty value.
func HasFields(fields map[string]string, keys ...string) bool {
	for _, key := range keys {
		if fields[key] == "" {
			return false
		}
	}
	return true
}
