package redirect

// Source names the rule that produced a destination.
type Source string

const (
	SourceDiscourse Source = "discourse"
	SourceReturnTo  Source = "return_to"
	SourceAdminHome Source = "admin_home"
	SourceUserHome  Source = "user_home"
)

// Hints is a snapshot of the redirect hints held in the session.
type Hints struct {
	ReturnTo          string
	DiscourseRedirect string
}

// Destinations are the fixed absolute URLs the resolver can fall back to.
type Destinations struct {
	UserHome    string
	AdminHome   string
	SSOEndpoint string
}

// Decision is the outcome of Resolve. URL is never empty.
type Decision struct {
	URL    string
	Source Source
	// ReturnToRejected is set when a return_to hint was present but unsafe.
	ReturnToRejected bool
}

// Resolver computes post-login destinations.
type Resolver struct {
	Destinations Destinations
	Checker      Checker
}

// Resolve picks the destination for a freshly authenticated user. First match wins:
// SSO handshake, safe return_to, admin home, user home. The SSO payload is not
// run through the safety check; it is only ever appended to the fixed SSO endpoint.
func (r Resolver) Resolve(h Hints, isContentAdmin bool) Decision {
	if h.DiscourseRedirect != "" {
		return Decision{URL: r.Destinations.SSOEndpoint + "?" + h.DiscourseRedirect, Source: SourceDiscourse}
	}

	var rejected bool
	if h.ReturnTo != "" {
		if r.Checker.IsSafe(h.ReturnTo) {
			return Decision{URL: h.ReturnTo, Source: SourceReturnTo}
		}
		rejected = true
	}

	if isContentAdmin {
		return Decision{URL: r.Destinations.AdminHome, Source: SourceAdminHome, ReturnToRejected: rejected}
	}
	return Decision{URL: r.Destinations.UserHome, Source: SourceUserHome, ReturnToRejected: rejected}
}
