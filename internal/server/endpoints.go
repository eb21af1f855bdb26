package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type urlMethodPair struct {
	urlSuffix, method string
}

// EndpointMap maps (urlSuffix, method) pairs to the handlers serving them.
type EndpointMap map[urlMethodPair][]gin.HandlerFunc

// A Controller owns a group of endpoints under a common prefix.
type Controller interface {
	GetGroupName() string
	GetEndpointMap() EndpointMap
}

// RegisterHandlers registers the endpoint handlers of c under r.
func RegisterHandlers(r *gin.RouterGroup, c Controller) error {
	group := r.Group(c.GetGroupName())
	for pair, handlers := range c.GetEndpointMap() {
		switch {
		case strings.EqualFold(pair.method, http.MethodGet):
			group.GET(pair.urlSuffix, handlers...)
		case strings.EqualFold(pair.method, http.MethodPost):
			group.POST(pair.urlSuffix, handlers...)
		case strings.EqualFold(pair.method, http.MethodDelete):
			group.DELETE(pair.urlSuffix, handlers...)
		default:
			return fmt.Errorf("unsupported HTTP method %q", pair.method)
		}
	}
	return nil
}

// ParameterErrorList contains a list of human-readable errors about
// parameters.
type ParameterErrorList []string

// AppendIf appends msg if cond holds.
func (pel *ParameterErrorList) AppendIf(cond bool, msg string) {
	if cond {
		*pel = append(*pel, msg)
	}
}

// AppendIfEmptyOrBlankSpaces appends msg if str is empty or contains only
// blank spaces, and returns the trimmed string.
func (pel *ParameterErrorList) AppendIfEmptyOrBlankSpaces(str string, msg string) string {
	str = strings.TrimSpace(str)
	pel.AppendIf(str == "", msg)
	return str
}
