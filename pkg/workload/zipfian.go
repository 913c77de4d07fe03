// Copyright 2018 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

/**
 * Copyright (c) 2010-2016 Yahoo! Inc., 2017 YCSB contributors. All rights reserved.
 * <p>
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License. You
 * may obtain a copy of the License at
 * <p>
 * http://www.apache.org/licenses/LICENSE-2.0
 * <p>
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
 * implied. See the License for the specific language governing
 * permissions and limitations under the License. See accompanying
 * LICENSE file.
 */

package workload

import (
	"math"
	"math/rand"
)

const ZipfianConstant = float64(0.99)

// Zipfian draws keys in [0, items) with key 0 the most popular. Every unit owns
// its own instance, so the item count never changes and no locking is needed.
type Zipfian struct {
	items int64

	theta      float64
	alpha      float64
	zetan      float64
	eta        float64
	zeta2Theta float64
}

func NewZipfian(items int64, zipfianConstant float64) *Zipfian {
	z := &Zipfian{
		items: items,
		theta: zipfianConstant,
	}
	z.zeta2Theta = zeta(0, 2, z.theta, 0)
	z.alpha = 1.0 / (1.0 - z.theta)
	z.zetan = zeta(0, items, z.theta, 0)
	z.eta = (1 - math.Pow(2.0/float64(items), 1-z.theta)) / (1 - z.zeta2Theta/z.zetan)
	return z
}

func zeta(st int64, n int64, theta float64, initialSum float64) float64 {
	sum := initialSum
	for i := st; i < n; i++ {
		sum += 1 / math.Pow(float64(i+1), theta)
	}
	return sum
}

func (z *Zipfian) Next(r *rand.Rand) int64 {
	u := r.Float64()
	uz := u * z.zetan

	if uz < 1.0 {
		return 0
	}
	if uz < 1.0+math.Pow(0.5, z.theta) {
		return 1
	}

	ret := int64(float64(z.items) * math.Pow(z.eta*u-z.eta+1, z.alpha))
	if ret >= z.items {
		ret = z.items - 1
	}
	return ret
}
