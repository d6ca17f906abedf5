package ctxkey

const (
	// Id is the authenticated tenant id for the current request.
	// Set in: middleware/auth. Read by controllers for ownership and billing.
	Id = "id"

	// Email is the authenticated tenant email, used for invitation acceptance.
	Email = "email"

	// Tier is the authenticated tenant's subscription tier name.
	Tier = "tier"

	// RequestId is the per-request unique identifier, also echoed as a header.
	RequestId = "X-Drama-Request-Id"
)
