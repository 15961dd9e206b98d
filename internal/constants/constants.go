package constants

// Lambda aliases published with every deployment
const (
	// LiveAlias is the alias AppSync invokes
	LiveAlias = "live"

	// VerifiedAlias is moved forward only after a release has been verified
	VerifiedAlias = "verified"
)

// Managed policies attached to the function's execution role
const (
	LambdaBasicExecutionPolicyARN = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"
	LambdaVPCAccessPolicyARN      = "arn:aws:iam::aws:policy/service-role/AWSLambdaVPCAccessExecutionRole"
	XRayWriteAccessPolicyARN      = "arn:aws:iam::aws:policy/AWSXRayDaemonWriteAccess"
	LambdaInsightsPolicyARN       = "arn:aws:iam::aws:policy/CloudWatchLambdaInsightsExecutionRolePolicy"
)

// Service principals
const (
	LambdaServicePrincipal  = "lambda.amazonaws.com"
	AppSyncServicePrincipal = "appsync.amazonaws.com"
)

// ManagedBy is the value of the ManagedBy tag on stacks this tool creates
const ManagedBy = "appsync-deployer"
