package chain

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	functionNameRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	paramNameRe     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	dataLocationSet = map[string]bool{"memory": true, "calldata": true, "storage": true}
	modifierSet     = map[string]bool{"external": true, "public": true, "view": true, "pure": true}
)

// FunctionParam is a single input or output of a function signature.
type FunctionParam struct {
	Name string
	Type string
}

// FunctionSignature is a parsed human readable function signature.
type FunctionSignature struct {
	Raw     string
	Name    string
	Inputs  []FunctionParam
	Outputs []FunctionParam
}

// ParseFunctionSignature parses a human readable view function signature.
// Supported formats:
//   - "totalSupply() returns (uint256)"
//   - "getNftTier(uint256 tokenId) returns (uint8)"
//   - "function userRecords(uint256) external view returns (uint256 shares, uint256 lockedAmount)"
func ParseFunctionSignature(sig string) (*FunctionSignature, error) {
	raw := strings.TrimSpace(sig)
	if raw == "" {
		return nil, fmt.Errorf("empty signature")
	}

	rest := strings.TrimSpace(strings.TrimPrefix(raw, "function "))

	openParen := strings.Index(rest, "(")
	if openParen == -1 {
		return nil, fmt.Errorf("invalid signature %q: missing opening parenthesis", raw)
	}

	name := strings.TrimSpace(rest[:openParen])
	if !functionNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid function name %q", name)
	}

	inputsStr, tail, err := takeParenthesized(rest[openParen:])
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", raw, err)
	}

	inputs, err := parseParameters(inputsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs of %s: %w", name, err)
	}

	var outputs []FunctionParam

	tail = strings.TrimSpace(tail)
	for tail != "" {
		word, after, _ := strings.Cut(tail, " ")
		if strings.HasPrefix(tail, "returns") {
			outStr, remaining, err := takeParenthesized(strings.TrimSpace(strings.TrimPrefix(tail, "returns")))
			if err != nil {
				return nil, fmt.Errorf("invalid returns clause of %s: %w", name, err)
			}

			if strings.TrimSpace(remaining) != "" {
				return nil, fmt.Errorf("unexpected trailing text %q in %s", remaining, name)
			}

			outputs, err = parseParameters(outStr)
			if err != nil {
				return nil, fmt.Errorf("invalid outputs of %s: %w", name, err)
			}

			break
		}

		if !modifierSet[word] {
			return nil, fmt.Errorf("unexpected token %q in %s", word, name)
		}

		tail = strings.TrimSpace(after)
	}

	return &FunctionSignature{
		Raw:     raw,
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}

// takeParenthesized returns the contents of the leading balanced parenthesis group and the remainder.
func takeParenthesized(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected '('")
	}

	depth := 0
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}

	return "", "", fmt.Errorf("missing closing parenthesis")
}

// parseParameters parses a comma separated parameter list.
func parseParameters(paramsStr string) ([]FunctionParam, error) {
	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr == "" {
		return nil, nil
	}

	parts := strings.Split(paramsStr, ",")
	params := make([]FunctionParam, 0, len(parts))
	seen := make(map[string]bool)

	for _, part := range parts {
		param, err := parseParameter(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", part, err)
		}

		if param.Name != "" {
			if seen[param.Name] {
				return nil, fmt.Errorf("duplicate parameter name: %s", param.Name)
			}
			seen[param.Name] = true
		}

		params = append(params, param)
	}

	return params, nil
}

// parseParameter parses "type", "type name" or "type memory name".
func parseParameter(paramStr string) (FunctionParam, error) {
	fields := strings.Fields(paramStr)
	if len(fields) == 0 {
		return FunctionParam{}, fmt.Errorf("empty parameter")
	}

	param := FunctionParam{Type: fields[0]}
	if _, err := abi.NewType(param.Type, "", nil); err != nil {
		return FunctionParam{}, fmt.Errorf("invalid Solidity type %s: %w", param.Type, err)
	}

	rest := fields[1:]
	if len(rest) > 0 && dataLocationSet[rest[0]] {
		rest = rest[1:]
	}

	switch len(rest) {
	case 0:
	case 1:
		if !paramNameRe.MatchString(rest[0]) {
			return FunctionParam{}, fmt.Errorf("invalid parameter name: %s", rest[0])
		}
		param.Name = rest[0]
	default:
		return FunctionParam{}, fmt.Errorf("too many parts in parameter definition")
	}

	return param, nil
}

// CanonicalSignature returns the selector signature, e.g. "getNftTier(uint256)".
func (f *FunctionSignature) CanonicalSignature() string {
	types := make([]string, len(f.Inputs))
	for i, in := range f.Inputs {
		types[i] = in.Type
	}

	return f.Name + "(" + strings.Join(types, ",") + ")"
}

// Method converts the signature into a go-ethereum ABI method.
func (f *FunctionSignature) Method() (abi.Method, error) {
	inputs, err := toArguments(f.Inputs)
	if err != nil {
		return abi.Method{}, err
	}

	outputs, err := toArguments(f.Outputs)
	if err != nil {
		return abi.Method{}, err
	}

	return abi.NewMethod(f.Name, f.Name, abi.Function, "view", true, false, inputs, outputs), nil
}

func toArguments(params []FunctionParam) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(params))
	for _, p := range params {
		typ, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("invalid type %s: %w", p.Type, err)
		}
		args = append(args, abi.Argument{Name: p.Name, Type: typ})
	}

	return args, nil
}

// ParseMethod parses a human readable signature straight into an ABI method.
func ParseMethod(sig string) (abi.Method, error) {
	parsed, err := ParseFunctionSignature(sig)
	if err != nil {
		return abi.Method{}, err
	}

	return parsed.Method()
}

// LoadABI reads a JSON ABI file.
func LoadABI(path string) (*abi.ABI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ABI file %s: %w", path, err)
	}
	defer f.Close()

	parsed, err := abi.JSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI file %s: %w", path, err)
	}

	return &parsed, nil
}

// ResolveMethod resolves a function reference. A reference containing '(' is parsed
// as a signature; otherwise it names a method of the given ABI.
func ResolveMethod(ref string, contractABI *abi.ABI) (abi.Method, error) {
	if strings.Contains(ref, "(") {
		return ParseMethod(ref)
	}

	if contractABI == nil {
		return abi.Method{}, fmt.Errorf("function %q needs a full signature or an ABI file", ref)
	}

	method, ok := contractABI.Methods[ref]
	if !ok {
		return abi.Method{}, fmt.Errorf("function %q not found in ABI", ref)
	}

	return method, nil
}
