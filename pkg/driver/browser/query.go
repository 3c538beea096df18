package browser

import (
	"fmt"
	"strconv"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/harness/pkg/core"
)

// locatorRoot is the page or an element scope. Page and Locator expose the
// same getters with differently typed options.
type locatorRoot interface {
	query(q core.Query) (playwright.Locator, error)
}

type pageRoot struct{ page playwright.Page }

func (r pageRoot) query(q core.Query) (playwright.Locator, error) {
	switch q.Kind {
	case core.QueryRole:
		opts := playwright.PageGetByRoleOptions{Exact: playwright.Bool(q.Exact)}
		if q.Name != "" {
			opts.Name = q.Name
		}
		return r.page.GetByRole(playwright.AriaRole(q.Role), opts), nil
	case core.QueryLabel:
		return r.page.GetByLabel(q.Text, playwright.PageGetByLabelOptions{Exact: playwright.Bool(q.Exact)}), nil
	case core.QueryText:
		return r.page.GetByText(q.Text, playwright.PageGetByTextOptions{Exact: playwright.Bool(q.Exact)}), nil
	case core.QueryTestAttr:
		return r.page.Locator(attrSelector(q)), nil
	case core.QuerySelector:
		return r.page.Locator(q.Selector), nil
	}
	return nil, unsupportedQuery(q)
}

type locatorScope struct{ loc playwright.Locator }

func (r locatorScope) query(q core.Query) (playwright.Locator, error) {
	switch q.Kind {
	case core.QueryRole:
		opts := playwright.LocatorGetByRoleOptions{Exact: playwright.Bool(q.Exact)}
		if q.Name != "" {
			opts.Name = q.Name
		}
		return r.loc.GetByRole(playwright.AriaRole(q.Role), opts), nil
	case core.QueryLabel:
		return r.loc.GetByLabel(q.Text, playwright.LocatorGetByLabelOptions{Exact: playwright.Bool(q.Exact)}), nil
	case core.QueryText:
		return r.loc.GetByText(q.Text, playwright.LocatorGetByTextOptions{Exact: playwright.Bool(q.Exact)}), nil
	case core.QueryTestAttr:
		return r.loc.Locator(attrSelector(q)), nil
	case core.QuerySelector:
		return r.loc.Locator(q.Selector), nil
	}
	return nil, unsupportedQuery(q)
}

// attrSelector builds [key="value"] with the value quoted for CSS.
func attrSelector(q core.Query) string {
	return fmt.Sprintf("[%s=%s]", q.Key, strconv.Quote(q.Value))
}

func unsupportedQuery(q core.Query) error {
	return core.ErrActionFailed.WithMessage(fmt.Sprintf("unsupported query kind %s", q.Kind))
}
