package ctxkey

const (
	// Id is the authenticated external user id (the JWT subject).
	// Set in: middleware.JWTAuth.
	// Read by controllers to resolve the caller's profile and ownership.
	Id = "id"

	// OrgId is the organization of the resolved profile.
	// Set in: middleware.JWTAuth once the profile lookup succeeds.
	// Read in: controllers for the org membership check on test definitions and runs.
	OrgId = "org_id"

	// ProfileId is the internal profile primary key.
	// Set in: middleware.JWTAuth.
	ProfileId = "profile_id"

	// ApiKey is the capability credential taken from the X-Api-Key header.
	// Set in: middleware.CapabilityCredential.
	// Read in: controllers when building qa/meta.Meta.
	ApiKey = "api_key"

	// Model is the capability model taken from the X-Model header, defaulting to config.DefaultModel.
	// Set in: middleware.CapabilityCredential.
	Model = "model"

	// RequestId mirrors helper.RequestIdKey for handlers that do not import helper.
	RequestId = "X-Convotest-Request-Id"
)
