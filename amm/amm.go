// Package amm implements the Liquidity Model (Component B): given a
// swap pool's normalized balances and weights, compute the output
// amount for a swap under a stable-swap invariant softened by an
// amplification factor, with a price-impact ceiling and a
// constant-product fallback for two-asset pools when AllowedVAMM is
// off.
//
// All arithmetic is done over math/big so results are reproducible
// across platforms; floating point never enters the computation.
package amm

import (
	"math/big"

	"github.com/meshbridge/router-node/errs"
)

// Pool is the normalized state the curve operates over: one entry per
// asset in the pool, in the same order as the SwapPool's assets[].
type Pool struct {
	// Balances are 18-decimal-normalized reserve amounts, weight
	// already applied (balance_i = rawBalance_i * weight_i).
	Balances []*big.Int
	// Amplification is the stable-swap amplification factor `A`; a
	// larger A makes the curve flatter (closer to constant-sum) near
	// the current balances.
	Amplification *big.Int
	// AllowedVAMM, when false and len(Balances) == 2, forces a
	// constant-product fallback instead of the amplified curve.
	AllowedVAMM bool
}

var (
	big0 = big.NewInt(0)
	big1 = big.NewInt(1)
)

// Quote computes the 18-decimal-normalized output amount for a swap
// of normalizedIn units of asset `in` into asset `out` within the
// pool, then rejects the swap if the effective price impact exceeds
// maxPriceImpact (expressed as a fraction scaled to impactScale,
// e.g. 1e18 for "1.0").
//
// Quote never mutates pool; callers apply the balance delta
// themselves once a quote is accepted.
func Quote(pool Pool, in, out int, normalizedIn *big.Int, maxPriceImpact, impactScale *big.Int) (*big.Int, error) {
	if in == out {
		return nil, errs.New(errs.ParamsInvalid, "Quote", "input and output asset indices are identical")
	}
	if in < 0 || out < 0 || in >= len(pool.Balances) || out >= len(pool.Balances) {
		return nil, errs.New(errs.ParamsInvalid, "Quote", "asset index out of range")
	}
	if normalizedIn.Sign() <= 0 {
		return nil, errs.New(errs.ParamsInvalid, "Quote", "input amount must be positive")
	}

	var rawOut *big.Int
	if !pool.AllowedVAMM && len(pool.Balances) == 2 {
		rawOut = constantProductOut(pool.Balances[in], pool.Balances[out], normalizedIn)
	} else {
		rawOut = stableSwapOut(pool.Balances, in, out, normalizedIn, pool.Amplification)
	}

	if rawOut.Sign() <= 0 {
		return nil, errs.New(errs.NotEnoughLiquidity, "Quote", "computed output is non-positive").
			With("poolSize", len(pool.Balances))
	}
	if rawOut.Cmp(pool.Balances[out]) >= 0 {
		return nil, errs.New(errs.NotEnoughLiquidity, "Quote", "output exceeds pool reserve").
			With("reserve", pool.Balances[out].String()).With("requested", rawOut.String())
	}

	if err := checkPriceImpact(normalizedIn, rawOut, maxPriceImpact, impactScale); err != nil {
		return nil, err
	}

	return rawOut, nil
}

// constantProductOut implements x*y=k for a two-asset pool:
// out = y - (x*y)/(x+in).
func constantProductOut(balIn, balOut, in *big.Int) *big.Int {
	k := new(big.Int).Mul(balIn, balOut)
	newBalIn := new(big.Int).Add(balIn, in)
	newBalOut := new(big.Int).Div(k, newBalIn)
	return new(big.Int).Sub(balOut, newBalOut)
}

// stableSwapOut finds the Bout decrement that keeps the amplified
// constant-sum invariant D = Σ Bk·wk (weights already folded into
// Balances) plus an amplification correction term roughly constant,
// via Newton's method on the StableSwap-style invariant. n is the
// number of assets in the pool.
//
// Balances already have per-asset weight applied (§4.B), so this
// operates directly on weighted reserves.
func stableSwapOut(balances []*big.Int, in, out int, amountIn *big.Int, amp *big.Int) *big.Int {
	n := big.NewInt(int64(len(balances)))

	post := make([]*big.Int, len(balances))
	for i, b := range balances {
		post[i] = new(big.Int).Set(b)
	}
	post[in] = new(big.Int).Add(post[in], amountIn)

	d := invariantD(balances, amp)

	// Solve for post[out] such that invariantD(post) == d, holding
	// every balance except `out` fixed, via Newton iteration on the
	// single-variable stable-swap relation.
	y := solveForBalance(post, out, d, amp, n)

	if y.Cmp(balances[out]) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(balances[out], y)
}

// invariantD computes D = Σ Bk + A*n*Π(Bk)/D_prev, iterated to a
// fixed point the way Curve's StableSwap does, using A·n as the
// amplification weight on the product term so a higher A flattens
// the curve toward constant-sum behavior.
func invariantD(balances []*big.Int, amp *big.Int) *big.Int {
	sum := big.NewInt(0)
	for _, b := range balances {
		sum.Add(sum, b)
	}
	if sum.Sign() == 0 {
		return big.NewInt(0)
	}
	n := int64(len(balances))
	nBig := big.NewInt(n)
	ampN := new(big.Int).Mul(amp, nBig)

	d := new(big.Int).Set(sum)
	for iter := 0; iter < 255; iter++ {
		dP := new(big.Int).Set(d)
		for _, b := range balances {
			denom := new(big.Int).Mul(b, nBig)
			if denom.Sign() == 0 {
				dP.SetInt64(0)
				break
			}
			dP.Div(new(big.Int).Mul(dP, d), denom)
		}

		numerator := new(big.Int).Mul(ampN, sum)
		numerator.Add(numerator, new(big.Int).Mul(dP, nBig))
		numerator.Mul(numerator, d)

		denomTerm1 := new(big.Int).Mul(new(big.Int).Sub(ampN, big1), d)
		denomTerm2 := new(big.Int).Mul(big.NewInt(n+1), dP)
		denominator := new(big.Int).Add(denomTerm1, denomTerm2)

		if denominator.Sign() == 0 {
			break
		}
		dNext := new(big.Int).Div(numerator, denominator)

		diff := new(big.Int).Sub(dNext, d)
		d = dNext
		if diff.CmpAbs(big1) <= 0 {
			break
		}
	}
	return d
}

// solveForBalance finds y = post[target] such that the pool with
// post[target] replaced by y satisfies invariantD(...) == d, via
// Newton's method on the single-variable StableSwap relation.
func solveForBalance(post []*big.Int, target int, d, amp, n *big.Int) *big.Int {
	ampN := new(big.Int).Mul(amp, n)

	c := new(big.Int).Set(d)
	sum := big.NewInt(0)
	for i, b := range post {
		if i == target {
			continue
		}
		sum.Add(sum, b)
		denom := new(big.Int).Mul(b, n)
		if denom.Sign() == 0 {
			continue
		}
		c.Div(new(big.Int).Mul(c, d), denom)
	}
	c.Div(new(big.Int).Mul(c, d), new(big.Int).Mul(ampN, n))

	b := new(big.Int).Add(sum, new(big.Int).Div(d, ampN))

	y := new(big.Int).Set(d)
	for iter := 0; iter < 255; iter++ {
		yPrev := new(big.Int).Set(y)
		num := new(big.Int).Add(new(big.Int).Mul(y, y), c)
		denom := new(big.Int).Sub(new(big.Int).Add(new(big.Int).Mul(big.NewInt(2), y), b), d)
		if denom.Sign() <= 0 {
			break
		}
		y.Div(num, denom)

		diff := new(big.Int).Sub(y, yPrev)
		if diff.CmpAbs(big1) <= 0 {
			break
		}
	}
	if y.Sign() < 0 {
		return big.NewInt(0)
	}
	return y
}

// checkPriceImpact rejects a swap whose output falls short of its
// input by more than maxPriceImpact/impactScale of the input, per
// §4.B. An output at or above the input is never rejected.
func checkPriceImpact(in, out, maxPriceImpact, impactScale *big.Int) error {
	if maxPriceImpact == nil || impactScale == nil || impactScale.Sign() == 0 {
		return nil
	}
	// impact = 1 - out/in, scaled: impactScaled = (in-out)*impactScale/in
	if in.Sign() == 0 {
		return nil
	}
	diff := new(big.Int).Sub(in, out)
	if diff.Sign() <= 0 {
		return nil
	}
	impactScaled := new(big.Int).Div(new(big.Int).Mul(diff, impactScale), in)
	if impactScaled.Cmp(maxPriceImpact) > 0 {
		return errs.New(errs.PriceImpactTooHigh, "Quote", "effective price impact exceeds configured bound").
			With("impact", impactScaled.String()).With("max", maxPriceImpact.String())
	}
	return nil
}

// ScaleDecimals rescales an 18-decimal-normalized amount to `to`
// decimals, flooring on the way down.
func ScaleDecimals(amount *big.Int, from, to uint8) *big.Int {
	if from == to {
		return new(big.Int).Set(amount)
	}
	if to > from {
		return new(big.Int).Mul(amount, pow10(to-from))
	}
	return new(big.Int).Div(amount, pow10(from-to))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
