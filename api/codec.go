package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// sonicSerializer lets echo encode and decode JSON bodies with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body: "+err.Error()).SetInternal(err)
	}
	return nil
}

// requestValidator checks request bodies against their `validate` tags and
// reports missing fields by their JSON names.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

func (rv *requestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error()).SetInternal(err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return echo.NewHTTPError(http.StatusUnprocessableEntity, "field required: "+strings.Join(fields, ", ")).SetInternal(err)
}

// decodeBody decodes the JSON request body into dst and validates it. A body
// without a Content-Type is read as JSON; any other non-JSON media type is
// rejected like a malformed body.
func decodeBody(c echo.Context, dst any) error {
	req := c.Request()
	if req.ContentLength != 0 {
		if !isJSONMediaType(req.Header.Get(echo.HeaderContentType)) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body: expected a JSON object")
		}
		if err := c.Echo().JSONSerializer.Deserialize(c, dst); err != nil {
			return err
		}
	}
	return c.Validate(dst)
}

func isJSONMediaType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == echo.MIMEApplicationJSON || strings.HasSuffix(mediaType, "+json")
}

// pathID parses an integer path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("invalid %s: must be an integer", name))
	}
	return id, nil
}
