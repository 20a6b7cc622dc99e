package strata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushkumar29/strata/internal/store"
)

// A small mixed-language project: a JavaScript cart that imports a
// JavaScript helper, a TypeScript client that imports the cart, and a
// Python payment module with an external dependency. Exercises every
// pipeline stage across all three grammars.

const utilJS = `/** Shared formatting helpers. */

/** Render a cent amount as dollars. */
export function formatPrice(cents) {
  return "$" + (cents / 100).toFixed(2);
}

export const slugify = (text) => text.toLowerCase().replace(/\s+/g, "-");
`

const cartJS = `/** Shopping cart operations. */
import { formatPrice } from "./util.js";

export class Cart {
  constructor() {
    this.items = [];
  }

  add(item) {
    this.items.push(item);
  }

  total() {
    let cents = 0;
    for (const item of this.items) {
      cents += item.price;
    }
    return formatPrice(cents);
  }
}
`

const clientTS = `/** Typed HTTP client for the orders API. */
import { Cart } from "../web/cart.js";

export interface Transport {
  send(payload: string): Promise<string>;
}

export class HttpTransport implements Transport {
  async send(payload: string): Promise<string> {
    const res = await fetch("/orders", { method: "POST", body: payload });
    return res.text();
  }
}

export function checkout(cart: Cart, transport: Transport): Promise<string> {
  return transport.send(JSON.stringify(cart));
}
`

const paymentPY = `"""Payment capture via the Stripe API."""

import stripe


class PaymentError(Exception):
    """Raised when a charge cannot be captured."""


def capture(order_id, cents):
    """Charge the card on file for an order."""
    amount = cents / 100
    charge = stripe.Charge.create(amount=amount, currency="usd")
    if charge is None:
        raise PaymentError("capture failed for %s" % str(order_id))
    return charge.id
`

func writePolyglotProject(t *testing.T, root string) {
	t.Helper()
	writeSource(t, root, "web/util.js", utilJS)
	writeSource(t, root, "web/cart.js", cartJS)
	writeSource(t, root, "api/client.ts", clientTS)
	writeSource(t, root, "services/payment.py", paymentPY)
}

func TestIntegration_PolyglotProject(t *testing.T) {
	e, root := newTestEngine(t)
	writePolyglotProject(t, root)

	report, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 4, report.Indexed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 13, report.Embedded)
	assert.Empty(t, report.Errors)

	stats, err := e.Stats()
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Files)
	assert.Equal(t, map[string]int{"javascript": 2, "typescript": 1, "python": 1}, stats.Languages)
	assert.Equal(t, 4, stats.NodesByKind[store.KindModule])
	assert.Equal(t, 4, stats.NodesByKind[store.KindClass])
	assert.Equal(t, 4, stats.NodesByKind[store.KindFunction])
	assert.Equal(t, 5, stats.NodesByKind[store.KindMethod])
	assert.Equal(t, 13, stats.EmbeddedSymbols)

	// External references (toFixed, fetch, stripe, Exception, ...) stay
	// behind as stubs rather than polluting the declared symbol counts.
	assert.Equal(t, 11, stats.Stubs)

	assert.Equal(t, 3, stats.EdgesByKind[store.EdgeImports])
	assert.Equal(t, 8, stats.EdgesByKind[store.EdgeDeclares])
	assert.Equal(t, 5, stats.EdgesByKind[store.EdgeContains])
	assert.Equal(t, 2, stats.EdgesByKind[store.EdgeInheritsFrom])
	assert.Equal(t, 12, stats.EdgesByKind[store.EdgeCalls])
}

func TestIntegration_CrossFileAndCrossLanguage(t *testing.T) {
	e, root := newTestEngine(t)
	writePolyglotProject(t, root)

	_, err := e.IndexDirectory(context.Background())
	require.NoError(t, err)
	q := e.Query()

	// A call from cart.js resolved against the declaration in util.js.
	callers, err := q.Callers("formatPrice")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "Cart.total", callers[0].Symbol.QualifiedName)
	assert.Equal(t, "web/cart.js", callers[0].File)
	assert.Equal(t, 18, callers[0].Line)

	// checkout reaches the interface method through its receiver type
	// and leaves JSON.stringify behind as a stub.
	callees, err := q.Callees("checkout")
	require.NoError(t, err)
	require.Len(t, callees, 2)
	assert.Equal(t, store.SymbolKey("api/client.ts", "Transport.send"), callees[0].Symbol.Key)
	assert.Equal(t, 16, callees[0].Line)
	assert.Equal(t, store.StubKey(store.KindFunction, "stringify"), callees[1].Symbol.Key)
	assert.True(t, callees[1].Symbol.IsStub)

	// Relative JS imports resolve to the sibling module.
	deps, err := q.ImportsOf("web/cart.js")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "web/util", deps[0].Module.QualifiedName)
	assert.False(t, deps[0].Module.IsStub)
	assert.Equal(t, 2, deps[0].Line)

	importers, err := q.ImportersOf("web/util")
	require.NoError(t, err)
	require.Len(t, importers, 1)
	assert.Equal(t, "web/cart.js", importers[0].File)
	assert.Equal(t, 2, importers[0].Line)

	// External Python imports are answerable through the module stub.
	importers, err = q.ImportersOf("stripe")
	require.NoError(t, err)
	require.Len(t, importers, 1)
	assert.Equal(t, "services/payment.py", importers[0].File)
	assert.Equal(t, 3, importers[0].Line)
	assert.True(t, importers[0].Module.IsStub)

	// TS implements clauses land in the hierarchy.
	h, err := q.Hierarchy("Transport")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Empty(t, h.Ancestors)
	require.Len(t, h.Descendants, 1)
	assert.Equal(t, "HttpTransport", h.Descendants[0].Node.Name)

	// Python bases outside the project appear as class stubs.
	h, err = q.Hierarchy("PaymentError")
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Len(t, h.Ancestors, 1)
	assert.Equal(t, "Exception", h.Ancestors[0].Node.Name)
	assert.True(t, h.Ancestors[0].Node.IsStub)

	outline, err := q.FileStructure("api/client.ts")
	require.NoError(t, err)
	require.NotNil(t, outline)
	assert.Equal(t, "api/client", outline.Module.QualifiedName)
	require.Len(t, outline.Classes, 2)
	assert.Equal(t, "Transport", outline.Classes[0].Class.Name)
	require.Len(t, outline.Classes[0].Methods, 1)
	assert.Equal(t, "Transport.send", outline.Classes[0].Methods[0].QualifiedName)
	assert.Equal(t, "HttpTransport", outline.Classes[1].Class.Name)
	require.Len(t, outline.Functions, 1)
	assert.Equal(t, "checkout", outline.Functions[0].Name)
}

func TestIntegration_AskOverPolyglotProject(t *testing.T) {
	e, root := newTestEngine(t)
	writePolyglotProject(t, root)

	ctx := context.Background()
	_, err := e.IndexDirectory(ctx)
	require.NoError(t, err)

	ans, err := e.Planner().Ask(ctx, "Who calls formatPrice?")
	require.NoError(t, err)
	assert.Equal(t, RouteStructural, ans.Route)
	require.Len(t, ans.Evidence, 2)
	assert.Equal(t, "formatPrice", ans.Evidence[0].Name)
	assert.InDelta(t, 0.5, ans.Evidence[0].Score, 0.001)
	assert.Equal(t, "Cart.total", ans.Evidence[1].Name)
	assert.Equal(t, "calls formatPrice", ans.Evidence[1].Reason)
	assert.Equal(t, "web/cart.js", ans.Evidence[1].Path)

	// Meaning-based lookup finds the Python symbol from its docstring.
	hits, err := e.SearchSemantic(ctx, "charge the card for an order", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, store.SymbolKey("services/payment.py", "capture"), hits[0].SymbolKey)
	assert.Greater(t, hits[0].Score, 0.4)
}

func TestIntegration_EditAndReindex(t *testing.T) {
	e, root := newTestEngine(t)
	writePolyglotProject(t, root)

	ctx := context.Background()
	_, err := e.IndexDirectory(ctx)
	require.NoError(t, err)

	grown := clientTS + `
export function retryCheckout(cart: Cart, transport: Transport): Promise<string> {
  return checkout(cart, transport);
}
`
	path := filepath.Join(root, "api", "client.ts")
	require.NoError(t, os.WriteFile(path, []byte(grown), 0o644))

	report, err := e.IndexFiles(ctx, []string{"api/client.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 6, report.Embedded)

	q := e.Query()

	callers, err := q.Callers("checkout")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "retryCheckout", callers[0].Symbol.Name)
	assert.Equal(t, "api/client.ts", callers[0].File)
	assert.Equal(t, 20, callers[0].Line)

	// The untouched files keep their cross-file edges.
	callers, err = q.Callers("formatPrice")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "Cart.total", callers[0].Symbol.QualifiedName)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.NodesByKind[store.KindFunction])
	assert.Equal(t, 14, stats.EmbeddedSymbols)

	// Re-indexing without changes takes the hash fast path.
	report, err = e.IndexFiles(ctx, []string{"api/client.ts"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
}
