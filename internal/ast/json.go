package ast

import "encoding/json"

// jsonToken mirrors Token for the --dump-ast-json debug format (spec §6):
// "node_type, token (tokenType, lexeme, line), var_type, children[]".
type jsonToken struct {
	TokenType string `json:"tokenType"`
	Lexeme    string `json:"lexeme"`
	Line      int    `json:"line"`
}

type jsonNode struct {
	NodeType string      `json:"node_type"`
	Token    *jsonToken  `json:"token,omitempty"`
	VarType  string      `json:"var_type"`
	Children []*jsonNode `json:"children"`
}

var tokenTypeNames = [...]string{
	TokNone:      "none",
	TokIdent:     "identifier",
	TokIntLit:    "int",
	TokRealLit:   "real",
	TokStringLit: "string",
	TokCharLit:   "char",
	TokKeyword:   "keyword",
	TokOperator:  "operator",
	TokPunct:     "punct",
}

func toJSONNode(n *Node) *jsonNode {
	if n == nil {
		return nil
	}
	jn := &jsonNode{
		NodeType: n.Kind.String(),
		VarType:  n.VarType.String(),
	}
	if n.Token != nil {
		jn.Token = &jsonToken{
			TokenType: tokenTypeNames[n.Token.Type],
			Lexeme:    n.Token.Lexeme,
			Line:      n.Token.Line,
		}
	}
	// Children are exposed in the JSON dump exactly as Left, Right, Extra,
	// then the ordered Children list: the dump's shape is "unspecified" per
	// spec §6, only the field names are contractual, so this ordering is
	// free to pick whatever is most readable.
	for _, c := range []*Node{n.Left, n.Right, n.Extra} {
		if c != nil {
			jn.Children = append(jn.Children, toJSONNode(c))
		}
	}
	for _, c := range n.Children {
		jn.Children = append(jn.Children, toJSONNode(c))
	}
	return jn
}

// MarshalJSON implements the --dump-ast-json debug contract.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSONNode(n))
}
