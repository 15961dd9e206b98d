// Package stack synthesizes the CloudFormation template that deploys the service
// Lambda, its aliases, the AppSync data source and one resolver per route.
package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"unicode"

	"github.com/savaki/appsync-deployer/internal/constants"
	"github.com/savaki/appsync-deployer/internal/errors"
	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/savaki/appsync-deployer/internal/services"
)

// Logical ids of the fixed resources
const (
	LambdaFunctionID      = "LambdaFunction"
	LambdaFunctionRoleID  = "LambdaFunctionRole"
	LambdaVersionPrefix   = "LambdaVersion"
	LambdaAliasID         = "LambdaAlias"
	LambdaVerifiedAliasID = "LambdaVerifiedAlias"
	AppSyncServiceRoleID  = "AppSyncServiceRole"
	LambdaDataSourceID    = "LambdaDataSource"
)

// Template parameters supplied at deploy time
const (
	CodeS3BucketParam = "CodeS3Bucket"
	CodeS3KeyParam    = "CodeS3Key"
)

// Resource types
const (
	TypeLambdaFunction    = "AWS::Lambda::Function"
	TypeLambdaVersion     = "AWS::Lambda::Version"
	TypeLambdaAlias       = "AWS::Lambda::Alias"
	TypeIAMRole           = "AWS::IAM::Role"
	TypeAppSyncDataSource = "AWS::AppSync::DataSource"
	TypeAppSyncResolver   = "AWS::AppSync::Resolver"
)

const (
	policyDocumentVersion = "2012-10-17"
	dataSourceTypeLambda  = "AWS_LAMBDA"
	tracingModeActive     = "Active"
	versionHashLength     = 10
	resolverSuffix        = "Resolver"
)

type namedResource struct {
	id       string
	resource Resource
}

// Input is everything synthesis needs. It never reads ambient state.
type Input struct {
	Config      *services.Config
	SubnetIDs   []string
	Descriptors []resolvers.Descriptor

	// CodeKey, when known, is folded into the version hash so a new code bundle
	// publishes a new version
	CodeKey string
}

// StackName is {service}-{region}-{stage}
func StackName(service, region, stage string) string {
	return service + "-" + region + "-" + stage
}

// ToCamel title cases each dash separated component of name and joins them
//
//	simple-serverless-service => SimpleServerlessService
func ToCamel(name string) string {
	var sb strings.Builder
	for _, component := range strings.Split(name, "-") {
		prevLetter := false
		for _, r := range component {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = unicode.IsLetter(r)
		}
	}
	return sb.String()
}

// DataSourceName is the AppSync data source name for service
func DataSourceName(service string) string {
	return ToCamel(service) + "Lambda"
}

// ResolverLogicalID strips everything but letters and digits from fieldName and
// appends Resolver
func ResolverLogicalID(fieldName string) (string, error) {
	var sb strings.Builder
	for _, r := range fieldName {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("field name %q has no letters or digits", fieldName)
	}
	return sb.String() + resolverSuffix, nil
}

func assumeRolePolicy(principal string) map[string]any {
	return map[string]any{
		"Version": policyDocumentVersion,
		"Statement": []any{
			map[string]any{
				"Effect":    "Allow",
				"Principal": map[string]any{"Service": principal},
				"Action":    "sts:AssumeRole",
			},
		},
	}
}

func inlinePolicy(name string, actions []string, resource any) map[string]any {
	return map[string]any{
		"PolicyName": name,
		"PolicyDocument": map[string]any{
			"Version": policyDocumentVersion,
			"Statement": []any{
				map[string]any{
					"Effect":   "Allow",
					"Action":   actions,
					"Resource": resource,
				},
			},
		},
	}
}

func functionEnvironment(c *services.Config) map[string]any {
	variables := map[string]any{}
	for k, v := range c.Environment {
		variables[k] = v
	}
	maps.Copy(variables, map[string]any{
		"STAGE":      c.Stage,
		"PGHOST":     c.DBHost,
		"PGPORT":     c.DBPort,
		"PGDATABASE": c.DBName,
		"LOG_LEVEL":  c.LogLevel,
	})
	return map[string]any{"Variables": variables}
}

func securityGroups(c *services.Config) []any {
	var groups []any
	for _, id := range c.SecurityGroupIDs {
		groups = append(groups, id)
	}
	if c.SecurityGroupExport != "" {
		groups = append(groups, ImportValue(c.SecurityGroupExport))
	}
	return groups
}

func versionHash(properties map[string]any, codeKey string) (string, error) {
	data, err := json.Marshal(properties)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(codeKey))
	return hex.EncodeToString(h.Sum(nil))[:versionHashLength], nil
}

// Synthesize builds the deployment template
func Synthesize(input Input) (*Template, error) {
	c := input.Config
	if c == nil {
		return nil, fmt.Errorf("%w: config", errors.ErrConfigRequired)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.HasNetwork() && len(input.SubnetIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrSubnetsNotFound, c.VPCID)
	}

	t := NewTemplate(fmt.Sprintf("AppSync resolvers for %s (%s)", c.Service, c.Stage))
	t.Parameters[CodeS3BucketParam] = Parameter{Type: "String", Description: "bucket holding the function code bundle"}
	t.Parameters[CodeS3KeyParam] = Parameter{Type: "String", Description: "key of the function code bundle"}

	managedPolicies := []any{
		constants.LambdaBasicExecutionPolicyARN,
		constants.XRayWriteAccessPolicyARN,
		constants.LambdaInsightsPolicyARN,
	}
	if c.HasNetwork() {
		managedPolicies = append(managedPolicies, constants.LambdaVPCAccessPolicyARN)
	}

	secretsARN := Sub("arn:aws:secretsmanager:${AWS::Region}:${AWS::AccountId}:secret:" + c.SecretPrefix + "/*")
	resources := []namedResource{
		{
			id: LambdaFunctionRoleID,
			resource: Resource{
				Type: TypeIAMRole,
				Properties: map[string]any{
					"AssumeRolePolicyDocument": assumeRolePolicy(constants.LambdaServicePrincipal),
					"ManagedPolicyArns":        managedPolicies,
					"Policies": []any{
						inlinePolicy("secrets", []string{
							"secretsmanager:DescribeSecret",
							"secretsmanager:GetSecretValue",
							"secretsmanager:List*",
						}, secretsARN),
					},
				},
			},
		},
	}

	functionProps := map[string]any{
		"FunctionName":  c.FunctionName(),
		"Description":   c.Service,
		"Runtime":       c.Runtime,
		"Handler":       c.Handler,
		"Timeout":       c.TimeoutSeconds,
		"MemorySize":    c.MemorySize,
		"TracingConfig": map[string]any{"Mode": tracingModeActive},
		"Environment":   functionEnvironment(c),
		"Code": map[string]any{
			"S3Bucket": Ref(CodeS3BucketParam),
			"S3Key":    Ref(CodeS3KeyParam),
		},
		"Role": GetAtt(LambdaFunctionRoleID, "Arn"),
	}
	if c.InsightsLayerARN != "" {
		functionProps["Layers"] = []any{c.InsightsLayerARN}
	}
	if c.HasNetwork() {
		functionProps["VpcConfig"] = map[string]any{
			"SubnetIds":        input.SubnetIDs,
			"SecurityGroupIds": securityGroups(c),
		}
	}

	hash, err := versionHash(functionProps, input.CodeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash function properties: %w", err)
	}
	versionID := LambdaVersionPrefix + hash

	dataSourceName := DataSourceName(c.Service)
	resources = append(resources,
		namedResource{LambdaFunctionID, Resource{Type: TypeLambdaFunction, Properties: functionProps}},
		namedResource{versionID, Resource{
			Type: TypeLambdaVersion,
			Properties: map[string]any{
				"FunctionName": Ref(LambdaFunctionID),
			},
		}},
		namedResource{LambdaAliasID, Resource{
			Type: TypeLambdaAlias,
			Properties: map[string]any{
				"FunctionName":    Ref(LambdaFunctionID),
				"FunctionVersion": GetAtt(versionID, "Version"),
				"Name":            constants.LiveAlias,
			},
		}},
		namedResource{LambdaVerifiedAliasID, Resource{
			Type: TypeLambdaAlias,
			Properties: map[string]any{
				"FunctionName":    Ref(LambdaFunctionID),
				"FunctionVersion": GetAtt(versionID, "Version"),
				"Name":            constants.VerifiedAlias,
			},
		}},
		namedResource{AppSyncServiceRoleID, Resource{
			Type: TypeIAMRole,
			Properties: map[string]any{
				"AssumeRolePolicyDocument": assumeRolePolicy(constants.AppSyncServicePrincipal),
				"Policies": []any{
					inlinePolicy("invoke-"+constants.LiveAlias, []string{"lambda:InvokeFunction"}, Ref(LambdaAliasID)),
				},
			},
		}},
		namedResource{LambdaDataSourceID, Resource{
			Type: TypeAppSyncDataSource,
			Properties: map[string]any{
				"ApiId":          c.APIID,
				"Name":           dataSourceName,
				"Type":           dataSourceTypeLambda,
				"LambdaConfig":   map[string]any{"LambdaFunctionArn": Ref(LambdaAliasID)},
				"ServiceRoleArn": GetAtt(AppSyncServiceRoleID, "Arn"),
			},
		}},
	)

	for _, r := range resources {
		if err := t.AddResource(r.id, r.resource); err != nil {
			return nil, err
		}
	}

	owners := map[string]string{}
	for _, d := range input.Descriptors {
		logicalID, err := ResolverLogicalID(d.FieldName)
		if err != nil {
			return nil, err
		}
		if prev, ok := owners[logicalID]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", errors.ErrResolverIDCollision, prev, d.FieldName, logicalID)
		}
		if _, ok := t.Resources[logicalID]; ok {
			return nil, fmt.Errorf("%w: %s maps to %s", errors.ErrResolverIDCollision, d.FieldName, logicalID)
		}
		owners[logicalID] = d.FieldName

		t.Resources[logicalID] = Resource{
			Type:      TypeAppSyncResolver,
			DependsOn: []string{LambdaDataSourceID},
			Properties: map[string]any{
				"ApiId":                   c.APIID,
				"TypeName":                d.TypeName,
				"FieldName":               d.FieldName,
				"DataSourceName":          d.DataSourceName,
				"RequestMappingTemplate":  d.RequestMappingTemplate,
				"ResponseMappingTemplate": d.ResponseMappingTemplate,
			},
		}
	}

	t.Outputs["FunctionArn"] = Output{Value: GetAtt(LambdaFunctionID, "Arn")}
	t.Outputs["LiveAliasArn"] = Output{Value: Ref(LambdaAliasID)}
	t.Outputs["FunctionVersion"] = Output{Value: GetAtt(versionID, "Version")}
	t.Outputs["DataSourceName"] = Output{Value: dataSourceName}
	t.Outputs["ResolverCount"] = Output{Value: strconv.Itoa(len(input.Descriptors))}

	return t, nil
}
