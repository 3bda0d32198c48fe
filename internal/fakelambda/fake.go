// Package fakelambda is an in-memory Lambda control plane and CloudWatch metrics
// source for tests. It implements the client surface consumed by pkg/aws and records
// every mutating call.
package fakelambda

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
)

const accountID = "123456789012"

// Spec describes a function to seed
type Spec struct {
	Name           string
	PackageType    string // defaults to Zip
	Architecture   string // defaults to x86_64
	Runtime        string // defaults to python3.12 for Zip
	MemoryMB       int32
	TimeoutSeconds int32
	CodeSize       int64 // defaults to 1 MiB
	Layers         []string
	Environment    map[string]string
	Tags           map[string]string
	SnapStart      bool
	Subnets        []string

	EnvironmentError       string // reads return this error code in place of the variables
	ProvisionedConcurrency int
	ReservedConcurrency    int32
	Throttles              float64
	PeakConcurrency        float64
	Aliases                map[string]lambdaTypes.FunctionConfiguration // alias name -> published version config
}

type function struct {
	spec     Spec
	arn      string
	revision int
}

// Server is a fake regional control plane. Safe for concurrent use.
type Server struct {
	mu        sync.Mutex
	region    string
	order     []string
	functions map[string]*function

	// PageSize controls ListFunctions pagination
	PageSize int

	failures  map[string]error
	listFails map[int]error
	calls     map[string]int
	updates   []lambda.UpdateFunctionConfigurationInput
	tagCalls  []lambda.TagResourceInput
	onGet     func(name string)
}

// New creates an empty control plane for a region
func New(region string) *Server {
	return &Server{
		region:    region,
		functions: make(map[string]*function),
		PageSize:  2,
		failures:  make(map[string]error),
		listFails: make(map[int]error),
		calls:     make(map[string]int),
	}
}

// Add seeds functions in listing order
func (s *Server) Add(specs ...Spec) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range specs {
		if spec.PackageType == "" {
			spec.PackageType = string(lambdaTypes.PackageTypeZip)
		}
		if spec.Architecture == "" {
			spec.Architecture = string(lambdaTypes.ArchitectureX8664)
		}
		if spec.Runtime == "" && spec.PackageType == string(lambdaTypes.PackageTypeZip) {
			spec.Runtime = "python3.12"
		}
		if spec.CodeSize == 0 {
			spec.CodeSize = 1 << 20
		}
		spec.Environment = cloneMap(spec.Environment)
		spec.Tags = cloneMap(spec.Tags)
		spec.Layers = slices.Clone(spec.Layers)
		s.order = append(s.order, spec.Name)
		s.functions[spec.Name] = &function{
			spec:     spec,
			arn:      s.ARN(spec.Name),
			revision: 1,
		}
	}
	return s
}

// ARN returns the function ARN for a name
func (s *Server) ARN(name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", s.region, accountID, name)
}

// LayerARN returns a layer version ARN in the server's region
func (s *Server) LayerARN(name string, version int) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:layer:%s:%d", s.region, accountID, name, version)
}

// Fail makes every call to operation return err. An empty name applies to all functions.
func (s *Server) Fail(operation, name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation+"/"+name] = err
}

// FailListPage makes the given 1-based ListFunctions page return err
func (s *Server) FailListPage(page int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listFails[page] = err
}

// OnGetFunction registers a hook run before GetFunction reads state, used to
// simulate concurrent edits between discovery and mutation.
func (s *Server) OnGetFunction(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGet = fn
}

// Mutate edits a function as an external actor would, bumping its revision
func (s *Server) Mutate(name string, fn func(*Spec)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.functions[name]; ok {
		fn(&f.spec)
		f.revision++
	}
}

// Delete removes a function
func (s *Server) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.functions, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
}

// Function returns a copy of the current state of a function
func (s *Server) Function(name string) (Spec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.functions[name]
	if !ok {
		return Spec{}, false
	}
	spec := f.spec
	spec.Environment = cloneMap(f.spec.Environment)
	spec.Tags = cloneMap(f.spec.Tags)
	spec.Layers = slices.Clone(f.spec.Layers)
	return spec, true
}

// Updates returns recorded UpdateFunctionConfiguration calls
func (s *Server) Updates() []lambda.UpdateFunctionConfigurationInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.updates)
}

// TagCalls returns recorded TagResource calls
func (s *Server) TagCalls() []lambda.TagResourceInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tagCalls)
}

// MutationCount is the number of successful mutating calls
func (s *Server) MutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates) + len(s.tagCalls)
}

// Calls returns how many times an operation was invoked
func (s *Server) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// APIError builds a service error with the given code
func APIError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code + " (fake)"}
}

// begin counts a call and returns an injected failure; callers hold the lock
func (s *Server) begin(operation, name string) error {
	s.calls[operation]++
	if err, ok := s.failures[operation+"/"+name]; ok {
		return err
	}
	if err, ok := s.failures[operation+"/"]; ok {
		return err
	}
	return nil
}

func (s *Server) lookup(nameOrARN string) (*function, bool) {
	if f, ok := s.functions[nameOrARN]; ok {
		return f, true
	}
	for _, f := range s.functions {
		if f.arn == nameOrARN {
			return f, true
		}
	}
	return nil, false
}

func notFound(name string) error {
	return &lambdaTypes.ResourceNotFoundException{Message: aws.String("Function not found: " + name)}
}

func (s *Server) configuration(f *function) lambdaTypes.FunctionConfiguration {
	spec := f.spec
	fc := lambdaTypes.FunctionConfiguration{
		FunctionName:  aws.String(spec.Name),
		FunctionArn:   aws.String(f.arn),
		PackageType:   lambdaTypes.PackageType(spec.PackageType),
		Runtime:       lambdaTypes.Runtime(spec.Runtime),
		CodeSize:      spec.CodeSize,
		RevisionId:    aws.String(strconv.Itoa(f.revision)),
		Architectures: []lambdaTypes.Architecture{lambdaTypes.Architecture(spec.Architecture)},
		Environment:   &lambdaTypes.EnvironmentResponse{Variables: cloneMap(spec.Environment)},
	}
	if spec.EnvironmentError != "" {
		fc.Environment = &lambdaTypes.EnvironmentResponse{Error: &lambdaTypes.EnvironmentError{
			ErrorCode: aws.String(spec.EnvironmentError),
			Message:   aws.String("Lambda was unable to decrypt the environment variables"),
		}}
	}
	if spec.MemoryMB > 0 {
		fc.MemorySize = aws.Int32(spec.MemoryMB)
	}
	if spec.TimeoutSeconds > 0 {
		fc.Timeout = aws.Int32(spec.TimeoutSeconds)
	}
	for _, layer := range spec.Layers {
		fc.Layers = append(fc.Layers, lambdaTypes.Layer{Arn: aws.String(layer)})
	}
	applyOn := lambdaTypes.SnapStartApplyOnNone
	if spec.SnapStart {
		applyOn = lambdaTypes.SnapStartApplyOnPublishedVersions
	}
	fc.SnapStart = &lambdaTypes.SnapStartResponse{ApplyOn: applyOn}
	if len(spec.Subnets) > 0 {
		fc.VpcConfig = &lambdaTypes.VpcConfigResponse{SubnetIds: slices.Clone(spec.Subnets)}
	}
	return fc
}

// ListFunctions pages with an index marker
func (s *Server) ListFunctions(_ context.Context, params *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("ListFunctions", ""); err != nil {
		return nil, err
	}

	start := 0
	if params.Marker != nil {
		n, err := strconv.Atoi(*params.Marker)
		if err != nil {
			return nil, APIError("InvalidParameterValueException")
		}
		start = n
	}

	pageSize := max(s.PageSize, 1)
	if err, ok := s.listFails[start/pageSize+1]; ok {
		return nil, err
	}

	end := min(start+pageSize, len(s.order))
	output := &lambda.ListFunctionsOutput{}
	for _, name := range s.order[start:end] {
		output.Functions = append(output.Functions, s.configuration(s.functions[name]))
	}
	if end < len(s.order) {
		output.NextMarker = aws.String(strconv.Itoa(end))
	}
	return output, nil
}

// ListTags returns the tags of a function ARN
func (s *Server) ListTags(_ context.Context, params *lambda.ListTagsInput, _ ...func(*lambda.Options)) (*lambda.ListTagsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(aws.ToString(params.Resource))
	name := aws.ToString(params.Resource)
	if ok {
		name = f.spec.Name
	}
	if err := s.begin("ListTags", name); err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(name)
	}
	return &lambda.ListTagsOutput{Tags: cloneMap(f.spec.Tags)}, nil
}

// GetFunction returns configuration and tags
func (s *Server) GetFunction(_ context.Context, params *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	name := aws.ToString(params.FunctionName)

	s.mu.Lock()
	hook := s.onGet
	s.mu.Unlock()
	if hook != nil {
		hook(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("GetFunction", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	fc := s.configuration(f)
	return &lambda.GetFunctionOutput{Configuration: &fc, Tags: cloneMap(f.spec.Tags)}, nil
}

// GetFunctionConfiguration returns $LATEST or a published alias version
func (s *Server) GetFunctionConfiguration(_ context.Context, params *lambda.GetFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := aws.ToString(params.FunctionName)
	if err := s.begin("GetFunctionConfiguration", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	fc := s.configuration(f)
	qualifier := aws.ToString(params.Qualifier)
	if qualifier != "" && qualifier != "$LATEST" {
		found := false
		for _, version := range f.spec.Aliases {
			if aws.ToString(version.Version) == qualifier {
				fc = version
				found = true
				break
			}
		}
		if !found {
			return nil, notFound(name + ":" + qualifier)
		}
	}
	return &lambda.GetFunctionConfigurationOutput{
		FunctionName: fc.FunctionName,
		FunctionArn:  fc.FunctionArn,
		Layers:       fc.Layers,
		Environment:  fc.Environment,
		Version:      fc.Version,
	}, nil
}

// UpdateFunctionConfiguration replaces layers and environment, honoring RevisionId
func (s *Server) UpdateFunctionConfiguration(_ context.Context, params *lambda.UpdateFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := aws.ToString(params.FunctionName)
	if err := s.begin("UpdateFunctionConfiguration", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	if params.RevisionId != nil && *params.RevisionId != strconv.Itoa(f.revision) {
		return nil, &lambdaTypes.PreconditionFailedException{Message: aws.String("revision mismatch")}
	}

	if params.Layers != nil {
		f.spec.Layers = slices.Clone(params.Layers)
	}
	if params.Environment != nil {
		f.spec.Environment = cloneMap(params.Environment.Variables)
	}
	f.revision++

	recorded := *params
	if params.Environment != nil {
		recorded.Environment = &lambdaTypes.Environment{Variables: cloneMap(params.Environment.Variables)}
	}
	recorded.Layers = slices.Clone(params.Layers)
	s.updates = append(s.updates, recorded)

	return &lambda.UpdateFunctionConfigurationOutput{
		FunctionName: aws.String(f.spec.Name),
		RevisionId:   aws.String(strconv.Itoa(f.revision)),
	}, nil
}

// TagResource merges tags
func (s *Server) TagResource(_ context.Context, params *lambda.TagResourceInput, _ ...func(*lambda.Options)) (*lambda.TagResourceOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(aws.ToString(params.Resource))
	name := aws.ToString(params.Resource)
	if ok {
		name = f.spec.Name
	}
	if err := s.begin("TagResource", name); err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(name)
	}
	if f.spec.Tags == nil {
		f.spec.Tags = map[string]string{}
	}
	maps.Copy(f.spec.Tags, params.Tags)
	s.tagCalls = append(s.tagCalls, lambda.TagResourceInput{Resource: params.Resource, Tags: cloneMap(params.Tags)})
	return &lambda.TagResourceOutput{}, nil
}

// ListProvisionedConcurrencyConfigs returns one item per configured instance pool
func (s *Server) ListProvisionedConcurrencyConfigs(_ context.Context, params *lambda.ListProvisionedConcurrencyConfigsInput, _ ...func(*lambda.Options)) (*lambda.ListProvisionedConcurrencyConfigsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := aws.ToString(params.FunctionName)
	if err := s.begin("ListProvisionedConcurrencyConfigs", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	output := &lambda.ListProvisionedConcurrencyConfigsOutput{}
	for i := 0; i < f.spec.ProvisionedConcurrency; i++ {
		output.ProvisionedConcurrencyConfigs = append(output.ProvisionedConcurrencyConfigs,
			lambdaTypes.ProvisionedConcurrencyConfigListItem{FunctionArn: aws.String(f.arn + ":" + strconv.Itoa(i+1))})
	}
	return output, nil
}

// GetFunctionConcurrency returns reserved concurrency, nil when unset
func (s *Server) GetFunctionConcurrency(_ context.Context, params *lambda.GetFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionConcurrencyOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := aws.ToString(params.FunctionName)
	if err := s.begin("GetFunctionConcurrency", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	output := &lambda.GetFunctionConcurrencyOutput{}
	if f.spec.ReservedConcurrency > 0 {
		output.ReservedConcurrentExecutions = aws.Int32(f.spec.ReservedConcurrency)
	}
	return output, nil
}

// ListAliases returns all aliases in a single page
func (s *Server) ListAliases(_ context.Context, params *lambda.ListAliasesInput, _ ...func(*lambda.Options)) (*lambda.ListAliasesOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := aws.ToString(params.FunctionName)
	if err := s.begin("ListAliases", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	output := &lambda.ListAliasesOutput{}
	aliasNames := make([]string, 0, len(f.spec.Aliases))
	for alias := range f.spec.Aliases {
		aliasNames = append(aliasNames, alias)
	}
	slices.Sort(aliasNames)
	for _, alias := range aliasNames {
		output.Aliases = append(output.Aliases, lambdaTypes.AliasConfiguration{
			Name:            aws.String(alias),
			FunctionVersion: f.spec.Aliases[alias].Version,
		})
	}
	return output, nil
}

// GetMetricStatistics serves Throttles and ConcurrentExecutions from the specs
func (s *Server) GetMetricStatistics(_ context.Context, params *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var name string
	for _, dim := range params.Dimensions {
		if aws.ToString(dim.Name) == "FunctionName" {
			name = aws.ToString(dim.Value)
		}
	}
	if err := s.begin("GetMetricStatistics", name); err != nil {
		return nil, err
	}
	f, ok := s.lookup(name)
	if !ok {
		return &cloudwatch.GetMetricStatisticsOutput{}, nil
	}

	datapoint := cwTypes.Datapoint{Timestamp: aws.Time(time.Now())}
	switch aws.ToString(params.MetricName) {
	case "Throttles":
		datapoint.Sum = aws.Float64(f.spec.Throttles)
	case "ConcurrentExecutions":
		datapoint.Maximum = aws.Float64(f.spec.PeakConcurrency)
	default:
		return &cloudwatch.GetMetricStatisticsOutput{}, nil
	}
	return &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwTypes.Datapoint{datapoint}}, nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
